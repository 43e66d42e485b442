/*
handlers.go - HTTP API handlers for the rent ledger

PURPOSE:
  Exposes the Book (rooms, settlement, undo history) and the sync session
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to billing.

ENDPOINTS:
  Rooms:
    GET    /api/rooms                   List rooms (q, building, payDay, sort)
    POST   /api/rooms                   Add one room
    POST   /api/rooms/batch/preview     Generate drafts for a block of rooms
    POST   /api/rooms/batch             Add drafts, skipping duplicates
    POST   /api/rooms/delete            Batch delete
    POST   /api/rooms/pay-day           Batch change pay-day
    GET    /api/rooms/{id}              Room with itemized charges
    PUT    /api/rooms/{id}              Partial update
    DELETE /api/rooms/{id}              Delete
    POST   /api/rooms/{id}/settle       Start a new month for one room
    POST   /api/rooms/{id}/move-out     Vacate
    POST   /api/rooms/{id}/status       Mark paid/unpaid

  Bills:
    GET    /api/rooms/{id}/bills            Settled bill records
    GET    /api/rooms/{id}/bills/export     Bill records as .xlsx
    GET    /api/rooms/{id}/bills/{billID}   One bill, itemized

  Settlement:
    POST   /api/settlements             Start a new month ("all" or pay-day)
    GET    /api/settlements/groups      Room counts per pay-day

  History:
    GET    /api/history                 Undo archive, newest first
    GET    /api/history/{index}         One archive entry with data
    POST   /api/history/{index}/restore Restore an archive entry

  Other:
    GET/PUT /api/config                 Global defaults
    GET     /api/summary                Expected vs collected totals
    GET     /api/export/rooms           All rooms as .xlsx
    GET     /api/journal                Commit journal (sqlite store only)
    GET/POST/DELETE /api/session        Remote sync session

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Room or archive not found
  - 409: Duplicate room number, sync not configured
  - 502: Remote fetch failed on session start
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The session endpoint trusts the caller's user id.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/app"
	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	App      *app.App
	Book     *billing.Book
	Logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler over an assembled app.
func NewHandler(a *app.App) *Handler {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		App:      a,
		Book:     a.Book,
		Logger:   logger.Named("api"),
		validate: validator.New(),
	}
}

// =============================================================================
// ROOM HANDLERS
// =============================================================================

// ListRooms returns rooms in natural room-number order.
// GET /api/rooms?q=&building=&payDay=&sort=unpaid
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	rooms := filter.Apply(h.Book.Present())
	billing.SortRooms(rooms, r.URL.Query().Get("sort") == "unpaid")

	writeJSON(w, http.StatusOK, toRoomDTOs(rooms, h.Book.Defaults()))
}

// CreateRoom adds one room.
// POST /api/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, err := h.Book.AddRoom(req.draft())
	if err != nil {
		h.writeDomainError(w, "Failed to add room", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomDTO(room, h.Book.Defaults()))
}

// PreviewBatch generates drafts without adding them. Drafts whose room
// number already exists are flagged.
// POST /api/rooms/batch/preview
func (h *Handler) PreviewBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchPreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	drafts, err := billing.PreviewBatch(req.spec())
	if err != nil {
		h.writeDomainError(w, "Invalid batch", err)
		return
	}
	fresh := billing.UniqueDrafts(h.Book.Present(), drafts)
	writeJSON(w, http.StatusOK, map[string]any{
		"drafts":     drafts,
		"new":        len(fresh),
		"duplicates": len(drafts) - len(fresh),
	})
}

// AddRooms adds a batch of drafts.
// POST /api/rooms/batch
func (h *Handler) AddRooms(w http.ResponseWriter, r *http.Request) {
	var req AddRoomsRequest
	if !h.decode(w, r, &req) {
		return
	}
	drafts := make([]billing.RoomDraft, len(req.Rooms))
	for i, d := range req.Rooms {
		drafts[i] = d.draft()
	}
	added, err := h.Book.AddRooms(drafts)
	if err != nil {
		h.writeDomainError(w, "Failed to add rooms", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomDTOs(added, h.Book.Defaults()))
}

// GetRoom returns one room.
// GET /api/rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Book.Room(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Room not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room, h.Book.Defaults()))
}

// UpdateRoom merges a partial update.
// PUT /api/rooms/{id}
func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var patch billing.RoomPatch
	if !h.decode(w, r, &patch) {
		return
	}
	room, err := h.Book.SaveRoom(chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeDomainError(w, "Failed to update room", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room, h.Book.Defaults()))
}

// DeleteRoom removes one room.
// DELETE /api/rooms/{id}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.Book.DeleteRoom(chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "Failed to delete room", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRooms removes the listed rooms.
// POST /api/rooms/delete
func (h *Handler) DeleteRooms(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	rooms, err := h.Book.DeleteRooms(req.IDs)
	if err != nil {
		h.writeDomainError(w, "Failed to delete rooms", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTOs(rooms, h.Book.Defaults()))
}

// SetPayDay moves the listed rooms to a new pay-day.
// POST /api/rooms/pay-day
func (h *Handler) SetPayDay(w http.ResponseWriter, r *http.Request) {
	var req PayDayRequest
	if !h.decode(w, r, &req) {
		return
	}
	rooms, err := h.Book.SetPayDay(req.IDs, req.PayDay)
	if err != nil {
		h.writeDomainError(w, "Failed to change pay day", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTOs(rooms, h.Book.Defaults()))
}

// SettleRoom starts a new month for one room.
// POST /api/rooms/{id}/settle
func (h *Handler) SettleRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Book.SettleRoom(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to settle room", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room, h.Book.Defaults()))
}

// MoveOut vacates a room.
// POST /api/rooms/{id}/move-out
func (h *Handler) MoveOut(w http.ResponseWriter, r *http.Request) {
	var req MoveOutRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, err := h.Book.MoveOut(chi.URLParam(r, "id"), req.ReturnDeposit)
	if err != nil {
		h.writeDomainError(w, "Failed to move out", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room, h.Book.Defaults()))
}

// SetStatus marks a room paid or unpaid.
// POST /api/rooms/{id}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, err := h.Book.SetStatus(chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeDomainError(w, "Failed to set status", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room, h.Book.Defaults()))
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// ListBills returns a room's settled bill records, oldest first.
// GET /api/rooms/{id}/bills
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	room, err := h.Book.Room(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Room not found", err)
		return
	}
	bills := room.BillHistory
	if bills == nil {
		bills = []billing.BillRecord{}
	}
	writeJSON(w, http.StatusOK, bills)
}

// GetBill returns one bill record projected into room shape and itemized
// with today's defaults.
// GET /api/rooms/{id}/bills/{billID}
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	room, err := h.Book.Room(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Room not found", err)
		return
	}
	rec, ok := billing.FindBill(room, chi.URLParam(r, "billID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Bill not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, BillDTO{
		Record: rec,
		Room:   toRoomDTO(billing.ProjectBill(room, rec), h.Book.Defaults()),
	})
}

// ExportBills returns a room's bill records as a workbook.
// GET /api/rooms/{id}/bills/export
func (h *Handler) ExportBills(w http.ResponseWriter, r *http.Request) {
	room, err := h.Book.Room(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Room not found", err)
		return
	}
	data, err := export.Bills(room)
	if err != nil {
		h.writeDomainError(w, "Failed to export bills", err)
		return
	}
	writeFile(w, fmt.Sprintf("bills-%s.xlsx", room.RoomNo), data)
}

// ExportRooms returns every room as a workbook.
// GET /api/export/rooms
func (h *Handler) ExportRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.Book.Present()
	billing.SortRooms(rooms, false)
	data, err := export.Rooms(rooms, h.Book.Defaults())
	if err != nil {
		h.writeDomainError(w, "Failed to export rooms", err)
		return
	}
	writeFile(w, "rooms.xlsx", data)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// Settle starts a new month for every room matching the target.
// POST /api/settlements
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Target == nil {
		req.Target = "all"
	}
	rooms, ids, err := h.Book.SettleRooms(req.Target)
	if err != nil {
		h.writeDomainError(w, "Failed to settle", err)
		return
	}
	settled := make([]billing.Room, 0, len(ids))
	for _, id := range ids {
		if i := billing.FindRoom(rooms, id); i >= 0 {
			settled = append(settled, rooms[i])
		}
	}
	writeJSON(w, http.StatusOK, SettleResponse{
		Settled: len(settled),
		Rooms:   toRoomDTOs(settled, h.Book.Defaults()),
	})
}

// PayDayGroups counts rooms per pay-day.
// GET /api/settlements/groups
func (h *Handler) PayDayGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, billing.PayDayGroups(h.Book.Present()))
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// ListHistory returns the undo archive, newest first.
// GET /api/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	items := h.Book.Archives()
	dtos := make([]ArchiveDTO, len(items))
	for i, it := range items {
		dtos[i] = ArchiveDTO{Index: i, Desc: it.Desc, Time: it.Time, Rooms: len(it.Data)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetArchive returns one archive entry with its data.
// GET /api/history/{index}
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	index, ok := archiveIndex(w, r)
	if !ok {
		return
	}
	items := h.Book.Archives()
	if index >= len(items) {
		h.writeDomainError(w, "Archive not found", billing.ErrArchiveNotFound)
		return
	}
	writeJSON(w, http.StatusOK, items[index])
}

// RestoreArchive makes an archive entry the present state.
// POST /api/history/{index}/restore
func (h *Handler) RestoreArchive(w http.ResponseWriter, r *http.Request) {
	index, ok := archiveIndex(w, r)
	if !ok {
		return
	}
	rooms, err := h.Book.Restore(index)
	if err != nil {
		h.writeDomainError(w, "Failed to restore", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTOs(rooms, h.Book.Defaults()))
}

// =============================================================================
// CONFIG, SUMMARY, JOURNAL
// =============================================================================

// GetConfig returns the global defaults.
// GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Book.Defaults())
}

// UpdateConfig replaces the global defaults.
// PUT /api/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var d billing.Defaults
	if !h.decode(w, r, &d) {
		return
	}
	h.Book.SetDefaults(d)
	writeJSON(w, http.StatusOK, h.Book.Defaults())
}

// Summary totals expected and collected amounts over the filtered rooms.
// GET /api/summary?q=&building=&payDay=
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	all := h.Book.Present()
	rooms := filter.Apply(all)
	writeJSON(w, http.StatusOK, SummaryDTO{
		Summary:   billing.Summarize(rooms, h.Book.Defaults()),
		Buildings: billing.Buildings(all),
		PayDays:   billing.PayDayGroups(all),
	})
}

// Journal returns the newest commit journal entries.
// GET /api/journal?limit=
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.App.Journal(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to read journal", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// GetSession reports the sync session.
// GET /api/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.App.Session())
}

// StartSession establishes a session and reconciles with the remote once.
// POST /api/session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.App.EstablishSession(r.Context(), req.UserID, req.AccessToken)
	if errors.Is(err, app.ErrSyncDisabled) {
		h.writeDomainError(w, "Sync unavailable", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "Remote fetch failed, local data kept", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EndSession stops syncing.
// DELETE /api/session
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.App.EndSession(); err != nil {
		h.writeDomainError(w, "Sync unavailable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into v and validates it. On failure it writes a
// 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, billing.ErrDuplicateRoomNo):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, app.ErrSyncDisabled), errors.Is(err, app.ErrJournalDisabled):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseFilter(r *http.Request) (billing.Filter, error) {
	q := r.URL.Query()
	f := billing.Filter{Query: q.Get("q"), Building: q.Get("building")}
	if s := strings.TrimSpace(q.Get("payDay")); s != "" {
		day, err := billing.ParsePayDay(s)
		if err != nil {
			return f, err
		}
		f.PayDay = day
	}
	return f, nil
}

func archiveIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "Invalid archive index", err)
		return 0, false
	}
	return index, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeFile(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
