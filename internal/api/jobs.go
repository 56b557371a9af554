package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studydeck/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	JobKindAIQuiz     = "ai-quiz"
	JobKindDeckImport = "deck-import"
)

// Job tracks a background task that the frontend polls: AI quiz generation
// or a PDF deck import.
type Job struct {
	ID        string                `json:"jobId"`
	Kind      string                `json:"kind"`
	Status    string                `json:"status"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Step      string                `json:"step,omitempty"`
	Message   string                `json:"message,omitempty"`
	Percent   int                   `json:"percent"`
	Warnings  []string              `json:"warnings,omitempty"`
	Questions []models.QuizQuestion `json:"questions,omitempty"`
	Cached    bool                  `json:"cached,omitempty"`
	Deck      *models.Deck          `json:"deck,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*Job),
	}
}

func (m *JobManager) CreateJob(kind string) string {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID
}

func (m *JobManager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusProcessing
	})
}

// UpdateProgress records coarse progress in [0, 1] with a status message.
func (m *JobManager) UpdateProgress(id string, progress float64, message string) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusProcessing
		job.Message = message
		job.Percent = percent(int(progress*100), 100)
	})
}

// UpdateStep records step-based progress from the deck importer.
func (m *JobManager) UpdateStep(id, step, message string, current, total int) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusProcessing
		job.Step = step
		job.Message = message
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) AddWarning(id, message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return
	}
	m.withJob(id, func(job *Job) {
		job.Warnings = append(job.Warnings, msg)
	})
}

func (m *JobManager) CompleteQuiz(id string, questions []models.QuizQuestion, cached bool) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusComplete
		job.Percent = 100
		job.Questions = questions
		job.Cached = cached
	})
}

func (m *JobManager) CompleteImport(id string, deck *models.Deck) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Percent = 100
		job.Deck = deck
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusFailed
		job.Error = strings.TrimSpace(msg)
	})
}

func (m *JobManager) withJob(id string, fn func(job *Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *Job) clone() *Job {
	if job == nil {
		return nil
	}
	copyJob := *job
	if len(job.Warnings) > 0 {
		copyJob.Warnings = append([]string(nil), job.Warnings...)
	}
	if len(job.Questions) > 0 {
		copyJob.Questions = append([]models.QuizQuestion(nil), job.Questions...)
	}
	if job.Deck != nil {
		deck := *job.Deck
		copyJob.Deck = &deck
	}
	return &copyJob
}

func percent(current, total int) int {
	if total <= 0 {
		if current <= 0 {
			return 0
		}
		if current > 100 {
			return 100
		}
		return current
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
