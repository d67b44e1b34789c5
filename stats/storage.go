package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Operation identifies a counted API operation.
type Operation string

const (
	OpAnalyze Operation = "analyze"
	OpFetch   Operation = "fetch"
	OpParse   Operation = "parse"
)

const monthFormat = "2006-01"

// MonthlyStats represents usage for a specific month
type MonthlyStats struct {
	Analyses        int       `json:"analyses"`
	Fetches         int       `json:"fetches"`
	Parses          int       `json:"parses"`
	Failures        int       `json:"failures"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Requests is the number of counted operations.
func (m MonthlyStats) Requests() int {
	return m.Analyses + m.Fetches + m.Parses
}

// AverageDurationMs is the mean handling time of counted operations.
func (m MonthlyStats) AverageDurationMs() float64 {
	if m.Requests() == 0 {
		return 0
	}
	return float64(m.TotalDurationMs) / float64(m.Requests())
}

// Storage handles persistent storage of statistics
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewStorage creates a statistics storage backed by dataDir/stats.json.
func NewStorage(dataDir string, logger logrus.FieldLogger) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		logger:      logger,
		now:         time.Now,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// save writes statistics to a temporary file and renames it into place.
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (s *Storage) backgroundWriter() {
	defer close(s.stopped)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
		case <-ticker.C:
		case <-s.done:
			return
		}
		if err := s.save(); err != nil {
			s.logger.WithError(err).Warn("saving statistics failed")
		}
	}
}

// requestWrite signals that a write to disk is needed
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

func (s *Storage) month() string {
	return s.now().Format(monthFormat)
}

// Record counts one operation of the current month.
func (s *Storage) Record(op Operation, failed bool, duration time.Duration) {
	month := s.month()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}

	switch op {
	case OpAnalyze:
		stats.Analyses++
	case OpFetch:
		stats.Fetches++
	case OpParse:
		stats.Parses++
	default:
		return
	}
	if failed {
		stats.Failures++
	}
	stats.TotalDurationMs += duration.Milliseconds()
	stats.LastUpdated = s.now()

	if s.now().Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	stats, _ := s.GetMonthlyStats(s.month())
	return stats
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns the months with recorded statistics, newest first.
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// Cleanup keeps the current month plus the retainMonths months before it.
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 0 {
		retainMonths = 0
	}
	oldest := s.now().AddDate(0, -retainMonths, 0).Format(monthFormat)

	s.mutex.Lock()
	var removed []string
	for key := range s.stats {
		if key < oldest {
			delete(s.stats, key)
			removed = append(removed, key)
		}
	}
	s.mutex.Unlock()

	if len(removed) > 0 {
		s.requestWrite()
		s.logger.WithFields(logrus.Fields{"removed": removed, "oldest_kept": oldest}).Info("statistics cleaned up")
	}
}

// Shutdown stops the background writer and saves synchronously.
func (s *Storage) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
		err = s.save()
	})
	return err
}
