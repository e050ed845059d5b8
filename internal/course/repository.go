package course

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

// Sentinel errors returned by repositories.
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrBlobNotFound   = errors.New("content blob not found")
)

// Summary is the catalog view of a course.
type Summary struct {
	ID          ID
	DisplayName string
}

// Repository serves course trees, the course catalog and static content.
type Repository interface {
	// Course loads the full tree and metadata of a course.
	Course(ctx context.Context, id ID) (*Course, error)
	// Courses lists every course in the catalog, ordered by id.
	Courses(ctx context.Context) ([]Summary, error)
	// ContentBlob opens a static file uploaded to a course.
	ContentBlob(ctx context.Context, id ID, filename string) (io.ReadCloser, error)
}

// MemoryRepository keeps courses in memory. It is safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	courses map[string]*Course
	blobs   map[string][]byte
}

// NewMemoryRepository returns a repository holding the given courses.
func NewMemoryRepository(courses ...*Course) *MemoryRepository {
	repo := &MemoryRepository{
		courses: make(map[string]*Course),
		blobs:   make(map[string][]byte),
	}
	for _, c := range courses {
		repo.Add(c)
	}
	return repo
}

// Add stores or replaces a course.
func (m *MemoryRepository) Add(c *Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID.Normalized()] = c
}

// AddBlob stores a static file for a course.
func (m *MemoryRepository) AddBlob(id ID, filename string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id.Normalized()+"/"+filename] = data
}

// Course implements Repository.
func (m *MemoryRepository) Course(_ context.Context, id ID) (*Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id.Normalized()]
	if !ok {
		return nil, ErrCourseNotFound
	}
	return c, nil
}

// Courses implements Repository.
func (m *MemoryRepository) Courses(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Summary, 0, len(m.courses))
	for _, c := range m.courses {
		result = append(result, Summary{ID: c.ID, DisplayName: c.DisplayName})
	}
	sortSummaries(result)
	return result, nil
}

// ContentBlob implements Repository.
func (m *MemoryRepository) ContentBlob(_ context.Context, id ID, filename string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[id.Normalized()+"/"+filename]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		return s[i].ID.String() < s[j].ID.String()
	})
}
