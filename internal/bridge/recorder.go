package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Recorder passively records group addresses seen on the bus and
// gateways found during discovery. It is called by the Bridge for
// every received telegram, building a picture of the installation
// over time without any configuration.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	db     *sql.DB
	logger Logger

	// Prepared statements for upserts (created once, reused)
	gaUpsertStmt      *sql.Stmt
	gatewayUpsertStmt *sql.Stmt
	stmtMu            sync.Mutex

	// Shutdown coordination
	closed bool
	mu     sync.RWMutex
}

// NewRecorder creates a recorder backed by the given database.
// The knx_group_addresses and knx_gateways tables must exist.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		db: db,
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the recorder for use.
// Must be called before RecordTelegram.
func (r *Recorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		return nil // Already started
	}

	gaStmt, err := r.db.Prepare(`
		INSERT INTO knx_group_addresses (address, first_seen, last_seen, last_value, last_apci, last_source, telegram_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(address) DO UPDATE SET
			last_seen = excluded.last_seen,
			last_value = excluded.last_value,
			last_apci = excluded.last_apci,
			last_source = excluded.last_source,
			telegram_count = telegram_count + 1
	`)
	if err != nil {
		return fmt.Errorf("preparing GA upsert statement: %w", err)
	}

	gatewayStmt, err := r.db.Prepare(`
		INSERT INTO knx_gateways (address, port, discovered_at)
		VALUES (?, ?, ?)
		ON CONFLICT(address, port) DO UPDATE SET
			discovered_at = excluded.discovered_at
	`)
	if err != nil {
		gaStmt.Close()
		return fmt.Errorf("preparing gateway upsert statement: %w", err)
	}

	r.gaUpsertStmt = gaStmt
	r.gatewayUpsertStmt = gatewayStmt
	r.log("recorder started")
	return nil
}

// Stop closes the recorder and releases resources.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		r.gaUpsertStmt.Close()
		r.gaUpsertStmt = nil
	}
	if r.gatewayUpsertStmt != nil {
		r.gatewayUpsertStmt.Close()
		r.gatewayUpsertStmt = nil
	}

	r.log("recorder stopped")
}

// RecordTelegram records a telegram observed on the bus.
// Called by the Bridge for every received telegram.
//
// Parameters:
//   - source: Source individual address (e.g., "1.1.5")
//   - address: Destination group address (e.g., "1/2/3")
//   - apci: Telegram type ("write", "read", "response")
//   - value: Telegram payload (nil for read requests)
func (r *Recorder) RecordTelegram(source, address, apci string, value []byte) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	stmt := r.gaUpsertStmt
	r.stmtMu.Unlock()

	if stmt == nil {
		return // Not started
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := stmt.Exec(address, now, now, value, apci, source); err != nil {
		r.logError("recording telegram", err)
	}
}

// RecordGateway records a gateway found during discovery.
func (r *Recorder) RecordGateway(address string, port uint16) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	stmt := r.gatewayUpsertStmt
	r.stmtMu.Unlock()

	if stmt == nil {
		return // Not started
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := stmt.Exec(address, port, now); err != nil {
		r.logError("recording gateway", err)
	}
}

// LastValue returns the most recent payload seen on a group address.
// Returns sql.ErrNoRows if the address has never been observed.
func (r *Recorder) LastValue(ctx context.Context, address string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT last_value FROM knx_group_addresses WHERE address = ?
	`, address).Scan(&value)
	return value, err
}

// GroupAddressCount returns the number of discovered group addresses.
func (r *Recorder) GroupAddressCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knx_group_addresses`).Scan(&count)
	return count, err
}

// GatewayCount returns the number of recorded gateways.
func (r *Recorder) GatewayCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knx_gateways`).Scan(&count)
	return count, err
}

// log logs an info message if logger is set.
func (r *Recorder) log(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (r *Recorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
