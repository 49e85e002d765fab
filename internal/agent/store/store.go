// Package store persists agent records for the platform service.
package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stocksim/internal/agent"
	"stocksim/internal/domain"
)

// Store is the agent platform's persistence layer.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the platform database and migrates the
// agents table.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&agent.Agent{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts an agent record.
func (s *Store) Create(a *agent.Agent) error {
	return s.db.Create(a).Error
}

// Get retrieves an agent by ID.
func (s *Store) Get(id string) (*agent.Agent, error) {
	var a agent.Agent
	if err := s.db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List returns all agents ordered by creation time.
func (s *Store) List() ([]*agent.Agent, error) {
	var agents []*agent.Agent
	if err := s.db.Order("created_at").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// Save writes back every field of an agent record.
func (s *Store) Save(a *agent.Agent) error {
	return s.db.Save(a).Error
}

// Delete removes an agent record.
func (s *Store) Delete(id string) error {
	res := s.db.Delete(&agent.Agent{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}
