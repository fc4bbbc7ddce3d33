// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"strings"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SLOT AVAILABILITY QUERY
// Возвращает свободные места для отображения. Значение справочное:
// любая запись заново проверяет вместимость внутри своей транзакции.
// ══════════════════════════════════════════════════════════════════════════════

// AvailabilityCache - справочный кэш занятости мест.
type AvailabilityCache interface {
	// Get возвращает ok=false, если значения нет.
	Get(ctx context.Context, slotID string) (*placement.Availability, bool, error)
	Set(ctx context.Context, a *placement.Availability) error
}

// GetSlotAvailabilityQuery содержит параметры запроса.
type GetSlotAvailabilityQuery struct {
	// SlotID - идентификатор места.
	SlotID string

	// BypassCache - читать напрямую из хранилища.
	BypassCache bool
}

// Validate проверяет корректность параметров запроса.
func (q GetSlotAvailabilityQuery) Validate() error {
	if strings.TrimSpace(q.SlotID) == "" {
		return errors.New("slot_id is required")
	}
	return nil
}

// SlotAvailabilityDTO - занятость места.
type SlotAvailabilityDTO struct {
	SlotID    string `json:"slot_id"`
	CompanyID string `json:"company_id"`
	Status    string `json:"status"`
	Capacity  int    `json:"capacity"`
	Occupied  int    `json:"occupied"`
	Available int    `json:"available"`

	// Bookable - место активно и в нём есть свободные места.
	Bookable bool `json:"bookable"`

	// FromCache - значение взято из кэша.
	FromCache bool `json:"from_cache"`
}

// GetSlotAvailabilityHandler обрабатывает запрос занятости места.
type GetSlotAvailabilityHandler struct {
	txm    placement.TxManager
	ledger *placement.CapacityLedger
	cache  AvailabilityCache
	log    *logger.Logger
}

// NewGetSlotAvailabilityHandler создаёт обработчик. cache может быть nil.
func NewGetSlotAvailabilityHandler(
	txm placement.TxManager,
	ledger *placement.CapacityLedger,
	cache AvailabilityCache,
	log *logger.Logger,
) *GetSlotAvailabilityHandler {
	if ledger == nil {
		ledger = placement.NewCapacityLedger()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetSlotAvailabilityHandler{txm: txm, ledger: ledger, cache: cache, log: log}
}

// Handle выполняет запрос.
func (h *GetSlotAvailabilityHandler) Handle(ctx context.Context, q GetSlotAvailabilityQuery) (*SlotAvailabilityDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.BypassCache {
		cached, ok, err := h.cache.Get(ctx, q.SlotID)
		switch {
		case err != nil:
			// Недоступный кэш не мешает ответу.
			h.log.Warn("availability cache read failed", logger.SlotID(q.SlotID), logger.Err(err))
		case ok:
			dto := toAvailabilityDTO(cached)
			dto.FromCache = true
			return dto, nil
		}
	}

	var snapshot *placement.Availability
	err := h.txm.WithinReadTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		var err error
		snapshot, err = h.ledger.Snapshot(ctx, tx, q.SlotID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, snapshot); err != nil {
			h.log.Warn("availability cache write failed", logger.SlotID(q.SlotID), logger.Err(err))
		}
	}
	return toAvailabilityDTO(snapshot), nil
}

func toAvailabilityDTO(a *placement.Availability) *SlotAvailabilityDTO {
	return &SlotAvailabilityDTO{
		SlotID:    a.SlotID,
		CompanyID: a.CompanyID,
		Status:    string(a.Status),
		Capacity:  a.Capacity,
		Occupied:  a.Occupied,
		Available: a.Available,
		Bookable:  a.Status == placement.SlotActive && a.Available > 0,
	}
}
