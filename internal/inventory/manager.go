package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the backing stock ledger of the manager
type Store interface {
	GetInventory(ctx context.Context, productID string) (*models.Inventory, error)
	IncrementReserved(ctx context.Context, productID string, quantity int) error
	ReleaseReserved(ctx context.Context, productID string, quantity int) error
}

// BatchStore can commit a whole cart atomically on its own side as well,
// which keeps reservations safe across several service instances.
type BatchStore interface {
	Store
	ReserveAll(ctx context.Context, lines []Line) ([]models.Shortfall, error)
	ReleaseAll(ctx context.Context, lines []Line) error
}

// Line is a consolidated per-product quantity
type Line struct {
	ProductID string
	Quantity  int
}

// Manager validates and reserves stock for whole carts
type Manager struct {
	store       Store
	locks       *lockTable
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewManager creates a reservation manager; lockTimeout bounds the wait for product locks.
func NewManager(store Store, lockTimeout time.Duration) *Manager {
	return &Manager{
		store:       store,
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
		logger:      util.GetLogger(),
	}
}

// consolidate sums quantities per product and sorts by product id
func consolidate(items []models.CartItem) []Line {
	totals := make(map[string]int, len(items))
	for _, it := range items {
		totals[it.ProductID] += it.Quantity
	}
	lines := make([]Line, 0, len(totals))
	for id, qty := range totals {
		lines = append(lines, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func productIDs(lines []Line) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}

// Reserve reserves every item or none. It validates all lines first and only then commits,
// holding the locks of every product in the cart for the whole duration.
//
// On failure the returned report is still populated so callers can show per-line reasons.
func (m *Manager) Reserve(ctx context.Context, items []models.CartItem) (*models.ReservationReport, error) {
	ctx, span := util.StartSpan(ctx, "Manager.Reserve", attribute.Int("cart.lines", len(items)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	lines := consolidate(items)

	unlock, err := m.locks.acquire(ctx, productIDs(lines), m.lockTimeout)
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("lock_timeout").Inc()
		util.RecordError(span, err)
		return failedReport(items, nil, err.Error()), err
	}
	defer unlock()

	shortfalls, err := m.validate(ctx, lines)
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return failedReport(items, nil, err.Error()), err
	}
	if len(shortfalls) > 0 {
		return m.insufficient(items, shortfalls, span)
	}

	shortfalls, err = m.commit(ctx, lines)
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return failedReport(items, nil, err.Error()), err
	}
	if len(shortfalls) > 0 {
		// another instance took the stock between our validation and the store's own check
		return m.insufficient(items, shortfalls, span)
	}

	util.InventoryReservationsTotal.Inc()
	m.logger.Info("Inventory reserved", zap.Int("products", len(lines)))
	return reservedReport(items), nil
}

func (m *Manager) insufficient(items []models.CartItem, shortfalls []models.Shortfall, span trace.Span) (*models.ReservationReport, error) {
	err := &models.InsufficientInventoryError{Shortfalls: shortfalls}
	util.RecordError(span, err)
	util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
	m.logger.Warn("Insufficient inventory", zap.Int("failing_products", len(shortfalls)), zap.Error(err))
	return failedReport(items, shortfalls, err.Error()), err
}

// validate checks every line before anything is written
func (m *Manager) validate(ctx context.Context, lines []Line) ([]models.Shortfall, error) {
	var shortfalls []models.Shortfall
	for _, l := range lines {
		inv, err := m.store.GetInventory(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load inventory for %s: %w", l.ProductID, err)
		}
		if inv.Free() < l.Quantity {
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Free:      inv.Free(),
			})
		}
	}
	return shortfalls, nil
}

// commit writes all lines. Per-line stores are compensated if a later line fails.
func (m *Manager) commit(ctx context.Context, lines []Line) ([]models.Shortfall, error) {
	if batch, ok := m.store.(BatchStore); ok {
		return batch.ReserveAll(ctx, lines)
	}

	for i, l := range lines {
		if err := m.store.IncrementReserved(ctx, l.ProductID, l.Quantity); err != nil {
			m.compensate(ctx, lines[:i])
			return nil, fmt.Errorf("failed to reserve stock for product %s: %w", l.ProductID, err)
		}
	}
	return nil, nil
}

// compensate rolls back lines that were already committed
func (m *Manager) compensate(ctx context.Context, lines []Line) {
	for _, l := range lines {
		if err := m.store.ReleaseReserved(ctx, l.ProductID, l.Quantity); err != nil {
			m.logger.Error("Failed to compensate reservation",
				zap.String("product_id", l.ProductID),
				zap.Int("quantity", l.Quantity),
				zap.Error(err))
		}
	}
}

// Release gives previously reserved stock back, e.g. when a checkout is abandoned.
// Unknown products are skipped.
func (m *Manager) Release(ctx context.Context, items []models.CartItem) error {
	ctx, span := util.StartSpan(ctx, "Manager.Release", attribute.Int("cart.lines", len(items)))
	defer span.End()

	lines := consolidate(items)

	unlock, err := m.locks.acquire(ctx, productIDs(lines), m.lockTimeout)
	if err != nil {
		util.RecordError(span, err)
		return err
	}
	defer unlock()

	if batch, ok := m.store.(BatchStore); ok {
		if err := batch.ReleaseAll(ctx, lines); err != nil {
			util.RecordError(span, err)
			return err
		}
	} else {
		for _, l := range lines {
			err := m.store.ReleaseReserved(ctx, l.ProductID, l.Quantity)
			if errors.Is(err, models.ErrProductNotFound) {
				m.logger.Warn("Skipping release of unknown product", zap.String("product_id", l.ProductID))
				continue
			}
			if err != nil {
				util.RecordError(span, err)
				return fmt.Errorf("failed to release stock for product %s: %w", l.ProductID, err)
			}
		}
	}

	units := 0
	for _, l := range lines {
		units += l.Quantity
	}
	util.InventoryReleasedUnitsTotal.Add(float64(units))
	m.logger.Info("Inventory released", zap.Int("products", len(lines)), zap.Int("units", units))
	return nil
}

func reservedReport(items []models.CartItem) *models.ReservationReport {
	lines := make([]models.LineReservation, len(items))
	for i, it := range items {
		lines[i] = models.LineReservation{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Status:    models.ReservationReserved,
		}
	}
	return &models.ReservationReport{Status: models.ReservationReserved, Lines: lines}
}

func failedReport(items []models.CartItem, shortfalls []models.Shortfall, reason string) *models.ReservationReport {
	byProduct := make(map[string]models.Shortfall, len(shortfalls))
	for _, s := range shortfalls {
		byProduct[s.ProductID] = s
	}

	lines := make([]models.LineReservation, len(items))
	for i, it := range items {
		lineReason := "cart reservation aborted"
		if s, ok := byProduct[it.ProductID]; ok {
			lineReason = s.String()
		}
		lines[i] = models.LineReservation{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Status:    models.ReservationFailed,
			Reason:    lineReason,
		}
	}
	return &models.ReservationReport{Status: models.ReservationFailed, Reason: reason, Lines: lines}
}

// NotRequestedReport marks every line as not reserved
func NotRequestedReport(items []models.CartItem) *models.ReservationReport {
	lines := make([]models.LineReservation, len(items))
	for i, it := range items {
		lines[i] = models.LineReservation{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Status:    models.ReservationNotRequested,
		}
	}
	return &models.ReservationReport{Status: models.ReservationNotRequested, Lines: lines}
}
