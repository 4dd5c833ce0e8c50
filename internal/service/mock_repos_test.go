package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/repository"
	pkgerrors "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/errors"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/storage"
)

// ── Mock SemesterRepository ──

type mockSemesterRepo struct {
	semesters map[string]*model.Semester
}

func newMockSemesterRepo() *mockSemesterRepo {
	return &mockSemesterRepo{semesters: make(map[string]*model.Semester)}
}

func (m *mockSemesterRepo) Create(_ context.Context, semester *model.Semester) error {
	if semester.SemesterID == "" {
		semester.SemesterID = "sem-" + semester.Name
	}
	semester.Version = 1
	m.semesters[semester.SemesterID] = semester
	return nil
}

func (m *mockSemesterRepo) GetByID(_ context.Context, id string) (*model.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSemesterRepo) GetCurrent(_ context.Context) (*model.Semester, error) {
	for _, s := range m.semesters {
		if s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSemesterRepo) List(_ context.Context) ([]model.Semester, error) {
	var result []model.Semester
	for _, s := range m.semesters {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.After(result[j].StartDate) })
	return result, nil
}

func (m *mockSemesterRepo) Update(_ context.Context, semester *model.Semester) error {
	stored, ok := m.semesters[semester.SemesterID]
	if !ok || stored.Version != semester.Version {
		return pkgerrors.ErrOptimisticLock
	}
	semester.Version++
	cp := *semester
	m.semesters[semester.SemesterID] = &cp
	return nil
}

func (m *mockSemesterRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.semesters, id)
	return nil
}

func (m *mockSemesterRepo) ClearActive(_ context.Context) error {
	for _, s := range m.semesters {
		s.IsActive = false
	}
	return nil
}

// ── Mock VacationRepository ──

type mockVacationRepo struct {
	vacations map[string]*model.VacationPeriod
	seq       int
}

func newMockVacationRepo() *mockVacationRepo {
	return &mockVacationRepo{vacations: make(map[string]*model.VacationPeriod)}
}

func (m *mockVacationRepo) Create(_ context.Context, v *model.VacationPeriod) error {
	if v.VacationID == "" {
		m.seq++
		v.VacationID = fmt.Sprintf("vac-%d", m.seq)
	}
	cp := *v
	m.vacations[v.VacationID] = &cp
	return nil
}

func (m *mockVacationRepo) BatchCreate(ctx context.Context, vacations []model.VacationPeriod) error {
	for i := range vacations {
		if err := m.Create(ctx, &vacations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockVacationRepo) GetByID(_ context.Context, id string) (*model.VacationPeriod, error) {
	if v, ok := m.vacations[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockVacationRepo) ListBySemester(_ context.Context, semesterID string) ([]model.VacationPeriod, error) {
	var result []model.VacationPeriod
	for _, v := range m.vacations {
		if v.SemesterID == semesterID {
			result = append(result, *v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

func (m *mockVacationRepo) Delete(_ context.Context, id string) error {
	delete(m.vacations, id)
	return nil
}

// ── Mock DirectoryRepository ──

type mockDirectoryRepo struct {
	staff     []model.Staff
	children  []model.Child
	guardians map[string]string // child_id → guardian_id
}

func newMockDirectoryRepo() *mockDirectoryRepo {
	return &mockDirectoryRepo{guardians: make(map[string]string)}
}

func (m *mockDirectoryRepo) Snapshot(_ context.Context) ([]model.Staff, []model.Child, error) {
	var staff []model.Staff
	for _, s := range m.staff {
		if s.IsActive {
			staff = append(staff, s)
		}
	}
	children := m.activeChildren()
	return staff, children, nil
}

func (m *mockDirectoryRepo) activeChildren() []model.Child {
	var children []model.Child
	for _, c := range m.children {
		if c.IsActive {
			children = append(children, c)
		}
	}
	return children
}

func (m *mockDirectoryRepo) GetStaff(_ context.Context, id string) (*model.Staff, error) {
	for i := range m.staff {
		if m.staff[i].StaffID == id {
			cp := m.staff[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDirectoryRepo) GetChild(_ context.Context, id string) (*model.Child, error) {
	for i := range m.children {
		if m.children[i].ChildID == id {
			cp := m.children[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDirectoryRepo) IsGuardian(_ context.Context, childID, guardianID string) (bool, error) {
	return m.guardians[childID] == guardianID, nil
}

// ── Mock ScheduleEntryRepository ──

type mockScheduleEntryRepo struct {
	entries   map[string]*model.ScheduleEntry
	imports   *mockScheduleImportRepo
	replaceFn func() error // 非 nil 时模拟 ReplaceBySemester 失败
	replaced  int
}

func newMockScheduleEntryRepo(imports *mockScheduleImportRepo) *mockScheduleEntryRepo {
	return &mockScheduleEntryRepo{entries: make(map[string]*model.ScheduleEntry), imports: imports}
}

func cloneEntry(e *model.ScheduleEntry) *model.ScheduleEntry {
	cp := *e
	cp.Children = append([]model.ScheduleEntryChild(nil), e.Children...)
	return &cp
}

func (m *mockScheduleEntryRepo) put(entries ...model.ScheduleEntry) {
	for i := range entries {
		m.entries[entries[i].EntryID] = cloneEntry(&entries[i])
	}
}

func (m *mockScheduleEntryRepo) ReplaceBySemester(_ context.Context, semesterID string, entries []model.ScheduleEntry, record *model.ScheduleImport) error {
	if m.replaceFn != nil {
		if err := m.replaceFn(); err != nil {
			return err
		}
	}
	for id, e := range m.entries {
		if e.SemesterID == semesterID {
			delete(m.entries, id)
		}
	}
	m.put(entries...)
	m.replaced++
	if record != nil && m.imports != nil {
		record.ImportID = fmt.Sprintf("imp-%d", len(m.imports.records)+1)
		m.imports.records = append(m.imports.records, *record)
	}
	return nil
}

func (m *mockScheduleEntryRepo) GetByID(_ context.Context, id string) (*model.ScheduleEntry, error) {
	if e, ok := m.entries[id]; ok {
		return cloneEntry(e), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleEntryRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	return m.GetByID(ctx, id)
}

func (m *mockScheduleEntryRepo) list(match func(e *model.ScheduleEntry) bool) []model.ScheduleEntry {
	var result []model.ScheduleEntry
	for _, e := range m.entries {
		if match(e) {
			result = append(result, *cloneEntry(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return result[i].StaffID < result[j].StaffID
	})
	return result
}

func (m *mockScheduleEntryRepo) ListBySemester(_ context.Context, semesterID string) ([]model.ScheduleEntry, error) {
	return m.list(func(e *model.ScheduleEntry) bool { return e.SemesterID == semesterID }), nil
}

func (m *mockScheduleEntryRepo) ListBySemesterAndStaff(_ context.Context, semesterID, staffID string) ([]model.ScheduleEntry, error) {
	return m.list(func(e *model.ScheduleEntry) bool {
		return e.SemesterID == semesterID && e.StaffID == staffID
	}), nil
}

func (m *mockScheduleEntryRepo) ListBySemesterAndChild(_ context.Context, semesterID, childID string) ([]model.ScheduleEntry, error) {
	return m.list(func(e *model.ScheduleEntry) bool {
		return e.SemesterID == semesterID && hasChild(e, childID)
	}), nil
}

func (m *mockScheduleEntryRepo) ListAlternatives(_ context.Context, entry *model.ScheduleEntry) ([]model.ScheduleEntry, error) {
	return m.list(func(e *model.ScheduleEntry) bool {
		return e.SemesterID == entry.SemesterID &&
			e.DayOfWeek == entry.DayOfWeek &&
			e.StartTime.Equal(entry.StartTime) &&
			e.EndTime.Equal(entry.EndTime) &&
			e.StaffID != entry.StaffID &&
			!e.Cancelled
	}), nil
}

func (m *mockScheduleEntryRepo) CountBySemester(_ context.Context, semesterID string) (int64, error) {
	var n int64
	for _, e := range m.entries {
		if e.SemesterID == semesterID {
			n++
		}
	}
	return n, nil
}

func (m *mockScheduleEntryRepo) UpdateCancelled(_ context.Context, entry *model.ScheduleEntry) error {
	stored, ok := m.entries[entry.EntryID]
	if !ok || stored.Version != entry.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.Cancelled = entry.Cancelled
	stored.Version++
	entry.Version = stored.Version
	return nil
}

func (m *mockScheduleEntryRepo) MoveChildren(_ context.Context, sourceID, targetID string, childIDs []string) error {
	source, ok := m.entries[sourceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	target, ok := m.entries[targetID]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	moving := make(map[string]bool, len(childIDs))
	for _, id := range childIDs {
		moving[id] = true
	}
	var kept []model.ScheduleEntryChild
	for _, c := range source.Children {
		if !moving[c.ChildID] {
			kept = append(kept, c)
			continue
		}
		if !hasChild(target, c.ChildID) {
			target.Children = append(target.Children, model.ScheduleEntryChild{
				EntryID: targetID, ChildID: c.ChildID, Child: c.Child,
			})
		}
	}
	source.Children = kept
	sort.Slice(target.Children, func(i, j int) bool { return target.Children[i].ChildID < target.Children[j].ChildID })
	source.Version++
	target.Version++
	return nil
}

// ── Mock ScheduleImportRepository ──

type mockScheduleImportRepo struct {
	records []model.ScheduleImport
}

func newMockScheduleImportRepo() *mockScheduleImportRepo {
	return &mockScheduleImportRepo{}
}

func (m *mockScheduleImportRepo) GetLatest(_ context.Context, semesterID string) (*model.ScheduleImport, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].SemesterID == semesterID {
			cp := m.records[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleImportRepo) ListBySemester(_ context.Context, semesterID string, offset, limit int) ([]model.ScheduleImport, int64, error) {
	var all []model.ScheduleImport
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].SemesterID == semesterID {
			all = append(all, m.records[i])
		}
	}
	return paginate(all, offset, limit), int64(len(all)), nil
}

// ── Mock ScheduleEntryChangeLogRepository ──

type mockChangeLogRepo struct {
	logs []model.ScheduleEntryChangeLog
}

func newMockChangeLogRepo() *mockChangeLogRepo {
	return &mockChangeLogRepo{}
}

func (m *mockChangeLogRepo) Create(_ context.Context, log *model.ScheduleEntryChangeLog) error {
	if log.ChangeLogID == "" {
		log.ChangeLogID = fmt.Sprintf("log-%d", len(m.logs)+1)
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, *log)
	return nil
}

func (m *mockChangeLogRepo) ListBySemester(_ context.Context, semesterID string, offset, limit int) ([]model.ScheduleEntryChangeLog, int64, error) {
	var all []model.ScheduleEntryChangeLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].SemesterID == semesterID {
			all = append(all, m.logs[i])
		}
	}
	return paginate(all, offset, limit), int64(len(all)), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ── Mock ImportLocker / TemplateSource ──

type mockLocker struct {
	held     map[string]string
	err      error
	acquired int
	released int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (m *mockLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	m.acquired++
	token := fmt.Sprintf("tok-%d", m.acquired)
	m.held[key] = token
	return token, true, nil
}

func (m *mockLocker) ReleaseLock(_ context.Context, key, token string) error {
	if m.held[key] == token {
		delete(m.held, key)
		m.released++
	}
	return nil
}

type mockTemplateSource struct {
	files map[string][]byte
}

func (m *mockTemplateSource) Load(_ context.Context, semesterID string) (string, []byte, error) {
	data, ok := m.files[semesterID]
	if !ok {
		return "", nil, fmt.Errorf("load %s: %w", semesterID, storage.ErrNotArchived)
	}
	return "planning.xlsx", data, nil
}

// ── 测试夹具 ──

type testRepos struct {
	repo      *repository.Repository
	semesters *mockSemesterRepo
	vacations *mockVacationRepo
	directory *mockDirectoryRepo
	entries   *mockScheduleEntryRepo
	imports   *mockScheduleImportRepo
	logs      *mockChangeLogRepo
}

func newTestRepos() *testRepos {
	imports := newMockScheduleImportRepo()
	r := &testRepos{
		semesters: newMockSemesterRepo(),
		vacations: newMockVacationRepo(),
		directory: newMockDirectoryRepo(),
		entries:   newMockScheduleEntryRepo(imports),
		imports:   imports,
		logs:      newMockChangeLogRepo(),
	}
	r.repo = &repository.Repository{
		Semester:       r.semesters,
		Vacation:       r.vacations,
		Directory:      r.directory,
		ScheduleEntry:  r.entries,
		ScheduleImport: r.imports,
		ChangeLog:      r.logs,
	}
	return r
}

var testLogger = zap.NewNop()
