package results

import (
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"main/internal/health"
	"main/internal/sink"
)

// StepRow is the persisted form of one step record.
type StepRow struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	Step       int
	Timestamp  time.Time
	Mode       string
	Orders     int
	Filled     int
	Failed     int
	Rejected   int
	Success    bool
	Aborted    bool
	Health     string
	ErrorCount int
	PnL        string
	Fees       string
	Err        string
}

// TerminalRow is the persisted terminal record of a failed run.
type TerminalRow struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"uniqueIndex"`
	Timestamp  time.Time
	Cause      string
	ErrorCount int
}

// Postgres stores run records in PostgreSQL.
type Postgres struct {
	db    *gorm.DB
	runID string
}

// NewPostgres migrates the result tables and binds the store to one run id.
func NewPostgres(db *gorm.DB, runID string) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("results: nil db")
	}
	if runID == "" {
		return nil, errors.New("results: empty run id")
	}
	if err := db.AutoMigrate(&StepRow{}, &TerminalRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate result tables")
	}
	return &Postgres{db: db, runID: runID}, nil
}

// SaveStep persists one step record.
func (p *Postgres) SaveStep(e sink.StepEvent) error {
	row := StepRow{
		RunID:      p.runID,
		Step:       e.Step,
		Timestamp:  e.Timestamp,
		Mode:       e.Mode.String(),
		Orders:     e.Orders,
		Filled:     e.Filled,
		Failed:     e.Failed,
		Rejected:   e.Rejected,
		Success:    e.Success,
		Aborted:    e.Aborted,
		Health:     e.Health,
		ErrorCount: e.ErrorCount,
		PnL:        e.PnL.String(),
		Fees:       e.Fees.String(),
		Err:        e.Err,
	}
	return p.db.Create(&row).Error
}

// SaveTerminal persists the run's terminal record.
func (p *Postgres) SaveTerminal(rec health.TerminalRecord) error {
	row := TerminalRow{
		RunID:      p.runID,
		Timestamp:  rec.Timestamp,
		Cause:      rec.Cause,
		ErrorCount: rec.ErrorCount,
	}
	return p.db.Create(&row).Error
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
