package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/charging-platform/central-system/internal/business/chargepoint"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/storage"
)

type chargePointView struct {
	Registration *storage.ChargePoint     `json:"registration"`
	Presence     *chargepoint.ChargePoint `json:"presence"`
}

// GetChargePoint 注册信息与在线状态，均不存在时 404
func (s *Server) GetChargePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	var view chargePointView
	cp, err := s.opts.Store.GetChargePoint(r.Context(), id)
	if err != nil {
		s.logger.Errorf("Failed to load charge point %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "store.error", "db error")
		return
	}
	view.Registration = cp
	if s.opts.Presence != nil {
		if presence, ok := s.opts.Presence.GetChargePoint(id); ok {
			view.Presence = presence
		}
	}
	if view.Registration == nil && view.Presence == nil {
		writeError(w, http.StatusNotFound, "chargepoint.not.found", "unknown charge point "+id)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "transaction.id.not.valid", "transactionId must be an integer")
		return
	}
	tx, err := s.opts.Store.GetTransaction(r.Context(), id)
	if err != nil {
		s.logger.Errorf("Failed to load transaction %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "store.error", "db error")
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "transaction.not.found", "unknown transaction "+strconv.Itoa(id))
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetReservation 已取消的预约返回 404
func (s *Server) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "reservationId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reservation.id.not.valid", "reservationId must be an integer")
		return
	}
	if s.opts.Reservations == nil {
		writeError(w, http.StatusNotFound, "reservation.not.found", "unknown reservation "+strconv.Itoa(id))
		return
	}
	res, err := s.opts.Reservations.Get(r.Context(), id)
	if err != nil {
		s.logger.Errorf("Failed to load reservation %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "store.error", "db error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reservation.not.found", "unknown reservation "+strconv.Itoa(id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type idTagRequest struct {
	IdTag       string  `json:"-" validate:"required,max=20"`
	ParentIdTag *string `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	ExpiryDate  *string `json:"expiryDate,omitempty"`
	Blocked     bool    `json:"blocked"`
}

// PutIdTag 新增或更新授权标签，保留交易中标记
func (s *Server) PutIdTag(w http.ResponseWriter, r *http.Request) {
	var req idTagRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "idtag.format.not.valid", "invalid json")
		return
	}
	req.IdTag = chi.URLParam(r, "idTag")
	if err := s.validator.ValidateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "idtag.params.not.valid", err.Error())
		return
	}

	record := storage.IdTagRecord{
		IdTag:       req.IdTag,
		ParentIdTag: req.ParentIdTag,
		Blocked:     req.Blocked,
	}
	if req.ExpiryDate != nil {
		expiry, err := validation.ParseOperatorTime(*req.ExpiryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "idtag.params.not.valid", "expiryDate: "+err.Error())
			return
		}
		record.ExpiryDate = &expiry
	}

	existing, err := s.opts.Store.GetIdTagRecord(r.Context(), req.IdTag)
	if err != nil {
		s.logger.Errorf("Failed to load idTag %s: %v", req.IdTag, err)
		writeError(w, http.StatusInternalServerError, "store.error", "db error")
		return
	}
	status := http.StatusCreated
	if existing != nil {
		record.InTransaction = existing.InTransaction
		status = http.StatusOK
	}

	if err := s.opts.Store.UpsertIdTag(r.Context(), record); err != nil {
		s.logger.Errorf("Failed to store idTag %s: %v", req.IdTag, err)
		writeError(w, http.StatusInternalServerError, "store.error", "db error")
		return
	}
	writeJSON(w, status, record)
}
