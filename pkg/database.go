package dispenser

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"
)

// DigitizationConstants are the calibration values of one detector valid for
// a range of runs.
type DigitizationConstants struct {
	Gain       float64 `db:"gain"`
	TimeOffset float64 `db:"time_offset"`
}

var DefaultConstants = DigitizationConstants{Gain: 1, TimeOffset: 0}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// ConstantsStore provides the per run calibration of each detector.
type ConstantsStore interface {
	LoadConstants(system string, runNumber int, variation string) (DigitizationConstants, error)
	LoadTranslationTable(system string, runNumber int, variation string) (*TranslationTable, error)
}

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// OpenSQLiteDatabase opens a local constants database file.
func OpenSQLiteDatabase(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, &ErrOpenFile{Filename: path, Err: err}
	}
	return db, nil
}

var constantsSchema = []string{
	`CREATE TABLE IF NOT EXISTS DigitizationConstants (
		detector    VARCHAR(64) NOT NULL,
		variation   VARCHAR(64) NOT NULL,
		MinRun      INTEGER NOT NULL,
		MaxRun      INTEGER NOT NULL,
		gain        DOUBLE NOT NULL,
		time_offset DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS TranslationTable (
		detector  VARCHAR(64) NOT NULL,
		variation VARCHAR(64) NOT NULL,
		MinRun    INTEGER NOT NULL,
		MaxRun    INTEGER NOT NULL,
		identity  VARCHAR(64) NOT NULL,
		crate     INTEGER NOT NULL,
		slot      INTEGER NOT NULL,
		channel   INTEGER NOT NULL
	)`,
}

// CreateConstantsSchema creates the calibration tables if they don't exist.
func CreateConstantsSchema(db *sqlx.DB) error {
	for _, stmt := range constantsSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error creating constants schema: %w", err)
		}
	}
	return nil
}

// SQLConstantsStore reads constants and translation tables from the
// DigitizationConstants and TranslationTable tables.
type SQLConstantsStore struct {
	db *sqlx.DB
}

func NewSQLConstantsStore(db *sqlx.DB) *SQLConstantsStore {
	return &SQLConstantsStore{db: db}
}

func (s *SQLConstantsStore) LoadConstants(system string, runNumber int, variation string) (DigitizationConstants, error) {
	var constants DigitizationConstants
	query := s.db.Rebind("SELECT gain, time_offset FROM DigitizationConstants WHERE detector = ? AND variation = ? AND MinRun <= ? AND MaxRun >= ?")
	err := s.db.Get(&constants, query, system, variation, runNumber, runNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return constants, fmt.Errorf("no constants for %s run %d variation %s", system, runNumber, variation)
	}
	if err != nil {
		return constants, fmt.Errorf("error querying constants: %w", err)
	}
	if verbose() {
		message := fmt.Sprintf("%s run %d: gain %g, time offset %g", system, runNumber, constants.Gain, constants.TimeOffset)
		logger.Info(message, "database")
	}
	return constants, nil
}

type ttEntry struct {
	Identity string `db:"identity"`
	HardwareAddress
}

func (s *SQLConstantsStore) LoadTranslationTable(system string, runNumber int, variation string) (*TranslationTable, error) {
	query := s.db.Rebind("SELECT identity, crate, slot, channel FROM TranslationTable WHERE detector = ? AND variation = ? AND MinRun <= ? AND MaxRun >= ?")
	rows, err := s.db.Queryx(query, system, variation, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying translation table: %w", err)
	}
	defer rows.Close()

	tt := NewTranslationTable()
	for rows.Next() {
		var entry ttEntry
		if err := rows.StructScan(&entry); err != nil {
			return nil, fmt.Errorf("error reading translation table row: %w", err)
		}
		tt.AddKey(entry.Identity, entry.HardwareAddress)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading translation table: %w", err)
	}
	if verbose() {
		message := fmt.Sprintf("%s run %d: %d translation table entries", system, runNumber, tt.Len())
		logger.Info(message, "database")
	}
	return tt, nil
}

// InsertConstants stores a constants row valid for runs minRun..maxRun.
func InsertConstants(db *sqlx.DB, system string, variation string, minRun int, maxRun int, c DigitizationConstants) error {
	query := db.Rebind("INSERT INTO DigitizationConstants (detector, variation, MinRun, MaxRun, gain, time_offset) VALUES (?, ?, ?, ?, ?, ?)")
	_, err := db.Exec(query, system, variation, minRun, maxRun, c.Gain, c.TimeOffset)
	return err
}

// InsertTranslationTable stores every entry of tt valid for runs minRun..maxRun.
func InsertTranslationTable(db *sqlx.DB, system string, variation string, minRun int, maxRun int, tt *TranslationTable) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	query := db.Rebind("INSERT INTO TranslationTable (detector, variation, MinRun, MaxRun, identity, crate, slot, channel) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	for key, address := range tt.entries {
		if _, err := tx.Exec(query, system, variation, minRun, maxRun, key, address.Crate, address.Slot, address.Channel); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// StaticConstantsStore serves the same constants for every run. It is used
// when no calibration database is configured.
type StaticConstantsStore struct {
	mu        sync.RWMutex
	constants map[string]DigitizationConstants
	tables    map[string]*TranslationTable
}

func NewStaticConstantsStore() *StaticConstantsStore {
	return &StaticConstantsStore{
		constants: make(map[string]DigitizationConstants),
		tables:    make(map[string]*TranslationTable),
	}
}

func (s *StaticConstantsStore) SetConstants(system string, c DigitizationConstants) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constants[system] = c
}

func (s *StaticConstantsStore) SetTranslationTable(system string, tt *TranslationTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[system] = tt
}

func (s *StaticConstantsStore) LoadConstants(system string, runNumber int, variation string) (DigitizationConstants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.constants[system]
	if !ok {
		return DefaultConstants, nil
	}
	return c, nil
}

// LoadTranslationTable returns nil for systems without a table: their hits
// don't carry electronics addresses.
func (s *StaticConstantsStore) LoadTranslationTable(system string, runNumber int, variation string) (*TranslationTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[system], nil
}

// GridTranslationTable addresses a sectors x elements detector as crate 1,
// slot = sector, channel = element.
func GridTranslationTable(sectors int, elements int) *TranslationTable {
	tt := NewTranslationTable()
	for s := 1; s <= sectors; s++ {
		for e := 1; e <= elements; e++ {
			tt.Add([]int{s, e}, HardwareAddress{Crate: 1, Slot: s, Channel: e})
		}
	}
	return tt
}
