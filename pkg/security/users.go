package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

var (
	// ErrInvalidCredentials is returned for an unknown user, a wrong password
	// or a disabled account. Callers cannot tell the cases apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned by lookups of unknown users
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when adding a user that is already present
	ErrUserExists = errors.New("user already exists")
)

// firstUID is the uid handed to the first user of an empty file
const firstUID = 1000

var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_.-]{0,31}$`)

// IdentityProvider authenticates users and resolves token subjects
type IdentityProvider interface {
	// Authenticate checks a username/password pair
	Authenticate(username, password string) (*types.User, error)
	// Lookup returns the current record of a user
	Lookup(username string) (*types.User, error)
}

// userRecord is one entry of the users file
type userRecord struct {
	UID       int       `json:"uid"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Hash      string    `json:"hash"`
	Disabled  bool      `json:"disabled,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *userRecord) public() *types.User {
	return &types.User{
		UID:      r.UID,
		Username: r.Username,
		FullName: r.FullName,
		Disabled: r.Disabled,
	}
}

type usersDocument struct {
	Users map[string]*userRecord `json:"users"`
}

// UsersFile is an IdentityProvider backed by a JSON file of bcrypt hashes.
// The file is re-read when its modification time changes, so accounts
// edited by the CLI take effect in a running server.
type UsersFile struct {
	path   string
	cost   int
	logger zerolog.Logger

	mu      sync.RWMutex
	users   map[string]*userRecord
	modTime time.Time
	size    int64

	dummyOnce sync.Once
	dummyHash []byte
}

// UsersOption configures a UsersFile
type UsersOption func(*UsersFile)

// WithCost sets the bcrypt cost used for new hashes
func WithCost(cost int) UsersOption {
	return func(f *UsersFile) {
		f.cost = cost
	}
}

// NewUsersFile opens the users file at path. A missing file is an empty
// user set; it is created by the first Add.
func NewUsersFile(path string, opts ...UsersOption) (*UsersFile, error) {
	if path == "" {
		return nil, fmt.Errorf("users file path must not be empty")
	}

	f := &UsersFile{
		path:   path,
		cost:   bcrypt.DefaultCost,
		logger: log.WithComponent("users"),
		users:  make(map[string]*userRecord),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the file location
func (f *UsersFile) Path() string {
	return f.path
}

// loadLocked reads the file if it changed since the last load.
// MUST be called while holding the write lock.
func (f *UsersFile) loadLocked() error {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.users = make(map[string]*userRecord)
		f.modTime, f.size = time.Time{}, 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat users file: %w", err)
	}
	if info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read users file: %w", err)
	}
	var doc usersDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse users file %s: %w", f.path, err)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]*userRecord)
	}

	f.users = doc.Users
	f.modTime, f.size = info.ModTime(), info.Size()
	return nil
}

// refresh reloads the file when it changed on disk. A broken file keeps
// the previous user set.
func (f *UsersFile) refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		f.logger.Warn().Err(err).Msg("Keeping previously loaded users")
	}
}

// saveLocked writes the file atomically.
// MUST be called while holding the write lock.
func (f *UsersFile) saveLocked() error {
	docs, err := storage.NewFileStore(filepath.Dir(f.path))
	if err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}
	if err := docs.Write(filepath.Base(f.path), usersDocument{Users: f.users}); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}

	if info, err := os.Stat(f.path); err == nil {
		f.modTime, f.size = info.ModTime(), info.Size()
	}
	return nil
}

// Add creates a user with a bcrypt hash of password
func (f *UsersFile) Add(username, fullName, password string) (*types.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}
	hash, err := f.hash(password)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return nil, err
	}
	if _, exists := f.users[username]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	uid := firstUID
	for _, u := range f.users {
		if u.UID >= uid {
			uid = u.UID + 1
		}
	}

	now := time.Now().UTC()
	rec := &userRecord{
		UID:       uid,
		Username:  username,
		FullName:  fullName,
		Hash:      string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.users[username] = rec
	if err := f.saveLocked(); err != nil {
		delete(f.users, username)
		return nil, err
	}

	f.logger.Info().Str("user", username).Int("uid", uid).Msg("User added")
	return rec.public(), nil
}

// SetPassword replaces the password hash of a user
func (f *UsersFile) SetPassword(username, password string) error {
	hash, err := f.hash(password)
	if err != nil {
		return err
	}
	return f.update(username, func(r *userRecord) {
		r.Hash = string(hash)
	})
}

// SetDisabled enables or disables an account. Disabled accounts cannot log
// in and their outstanding tokens stop working.
func (f *UsersFile) SetDisabled(username string, disabled bool) error {
	return f.update(username, func(r *userRecord) {
		r.Disabled = disabled
	})
}

func (f *UsersFile) update(username string, mutate func(*userRecord)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return err
	}

	rec, ok := f.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	prev := *rec
	mutate(rec)
	rec.UpdatedAt = time.Now().UTC()
	if err := f.saveLocked(); err != nil {
		*rec = prev
		return err
	}
	return nil
}

// List returns all users ordered by name
func (f *UsersFile) List() []*types.User {
	f.refresh()

	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*types.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u.public())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Lookup implements IdentityProvider
func (f *UsersFile) Lookup(username string) (*types.User, error) {
	f.refresh()

	f.mu.RLock()
	defer f.mu.RUnlock()
	rec, ok := f.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return rec.public(), nil
}

// Authenticate implements IdentityProvider
func (f *UsersFile) Authenticate(username, password string) (*types.User, error) {
	f.refresh()

	f.mu.RLock()
	rec, ok := f.users[username]
	var (
		hash []byte
		user *types.User
	)
	if ok {
		hash = []byte(rec.Hash)
		user = rec.public()
	}
	f.mu.RUnlock()

	if !ok {
		// same bcrypt work as a real check so timing does not reveal names
		_ = bcrypt.CompareHashAndPassword(f.dummy(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (f *UsersFile) hash(password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), f.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (f *UsersFile) dummy() []byte {
	f.dummyOnce.Do(func() {
		f.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("netpanel-dummy-password"), f.cost)
	})
	return f.dummyHash
}
