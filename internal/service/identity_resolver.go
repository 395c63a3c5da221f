package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/normalize"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
)

// ── identity resolution errors ──

var (
	ErrEmptyName        = errors.New("name is empty")
	ErrIdentityNotFound = errors.New("no identity matches the name")
	ErrNameTooLong      = errors.New("name does not fit the identity columns")
)

const (
	identityLoadBatch   = 5000
	usernameFallback    = "user"
	createRetries       = 3
	unusablePasswordTag = "!"

	// identities.first_name / last_name and name_key widths
	maxNamePartLen = 150
	maxNameKeyLen  = 300
)

// ResolverOptions configures one resolver.
type ResolverOptions struct {
	// CreateMissing provisions identities for unseen names.
	CreateMissing bool
	// DryRun resolves unseen names to synthetic negative handles without writing.
	DryRun bool
}

// IdentityResolver maps names to identity handles for a single import run.
// It is not safe for concurrent use; every run builds its own.
//
// Creations are tracked per unit of work: Commit marks them durable,
// Discard forgets them after the caller rolled the transaction back.
type IdentityResolver struct {
	repo   *repository.Repository
	logger *zap.Logger
	opts   ResolverOptions

	byKey    map[string]int64
	display  map[string]string
	reserved map[string]map[string]struct{} // username prefix → taken usernames
	links    map[int64]int64                // worker → supervisor, last write wins
	granted  map[int64]struct{}

	// ids this resolver inserted; only they may receive the supervisor role
	provisioned map[int64]struct{}

	pending      []string // keys created since the last Commit
	pendingRoles []int64  // supervisor grants since the last Commit
	created      int
	supervisorID int64 // role id, resolved lazily
	credential   string
	nextDryID    int64
	candidates   []string
}

// NewIdentityResolver returns an empty resolver; call Load before Resolve.
func NewIdentityResolver(repo *repository.Repository, logger *zap.Logger, opts ResolverOptions) *IdentityResolver {
	return &IdentityResolver{
		repo:     repo,
		logger:   logger,
		opts:     opts,
		byKey:    make(map[string]int64),
		display:  make(map[string]string),
		reserved: make(map[string]map[string]struct{}),
		links:    make(map[int64]int64),
		granted:  make(map[int64]struct{}),

		provisioned: make(map[int64]struct{}),
	}
}

// Load reads every existing identity once into the key cache.
func (r *IdentityResolver) Load(ctx context.Context) error {
	err := r.repo.Identity.StreamAll(ctx, identityLoadBatch, func(batch []model.Identity) error {
		for i := range batch {
			identity := &batch[i]
			display := identity.DisplayName()
			key := identity.NameKey
			if key == "" {
				key = normalize.Key(display)
			}
			if key == "" {
				continue
			}
			r.byKey[key] = identity.ID
			r.display[key] = display
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	r.logger.Debug("identity cache loaded", zap.Int("identities", len(r.byKey)))
	return nil
}

// Known number of cached keys.
func (r *IdentityResolver) Known() int { return len(r.byKey) }

// CreatedCount identities provisioned and not discarded.
func (r *IdentityResolver) CreatedCount() int { return r.created }

// Resolve returns the handle for raw. Unseen names are provisioned through
// txRepo when CreateMissing is set. The supervisor role is granted only to
// identities this resolver provisioned; existing accounts keep their roles.
func (r *IdentityResolver) Resolve(ctx context.Context, txRepo *repository.Repository, raw string, kind model.IdentityKind) (int64, error) {
	display, key := normalize.Normalize(raw)
	if key == "" {
		return 0, ErrEmptyName
	}
	if !fitsIdentityColumns(display, key) {
		return 0, ErrNameTooLong
	}

	id, ok := r.byKey[key]
	if !ok {
		if !r.opts.CreateMissing {
			return 0, ErrIdentityNotFound
		}
		var err error
		id, err = r.create(ctx, txRepo, display, key)
		if err != nil {
			return 0, err
		}
	}

	if _, own := r.provisioned[id]; own && kind == model.KindSupervisor {
		if err := r.grantSupervisor(ctx, txRepo, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func fitsIdentityColumns(display, key string) bool {
	first, last := normalize.SplitName(display)
	return utf8.RuneCountInString(first) <= maxNamePartLen &&
		utf8.RuneCountInString(last) <= maxNamePartLen &&
		utf8.RuneCountInString(key) <= maxNameKeyLen
}

func (r *IdentityResolver) create(ctx context.Context, txRepo *repository.Repository, display, key string) (int64, error) {
	if r.opts.DryRun {
		r.nextDryID--
		r.remember(key, display, r.nextDryID)
		r.created++
		return r.nextDryID, nil
	}

	credential, err := r.unusableCredential()
	if err != nil {
		return 0, err
	}
	first, last := normalize.SplitName(display)
	base := normalize.UsernameBase(display, usernameFallback)

	for attempt := 0; attempt < createRetries; attempt++ {
		username, err := r.allocateUsername(ctx, txRepo, base, attempt > 0)
		if err != nil {
			return 0, err
		}

		identity := &model.Identity{
			Username:  username,
			FirstName: first,
			LastName:  last,
			NameKey:   key,
			Password:  credential,
			IsActive:  true,
			Skills:    model.StringArray{},
		}
		created, err := txRepo.Identity.CreateIfAbsent(ctx, identity)
		if err != nil {
			return 0, fmt.Errorf("create identity %q: %w", display, err)
		}
		if created {
			r.remember(key, display, identity.ID)
			r.pending = append(r.pending, key)
			r.provisioned[identity.ID] = struct{}{}
			r.created++
			r.logger.Debug("identity created", zap.String("username", username), zap.Int64("id", identity.ID))
			return identity.ID, nil
		}

		// Nothing inserted: either another run created this person first or
		// the username was taken behind our back.
		existing, err := txRepo.Identity.GetByNameKey(ctx, key)
		if err == nil {
			r.remember(key, display, existing.ID)
			r.logger.Info("identity created concurrently, reusing", zap.String("name", display), zap.Int64("id", existing.ID))
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("re-resolve identity %q: %w", display, err)
		}
	}
	return 0, fmt.Errorf("create identity %q: username allocation kept colliding", display)
}

func (r *IdentityResolver) remember(key, display string, id int64) {
	r.byKey[key] = id
	r.display[key] = display
	r.candidates = nil
}

// allocateUsername picks base, base_2, base_3, ... against the reservation
// set of base, which is read from the store once (or again when refresh is set).
func (r *IdentityResolver) allocateUsername(ctx context.Context, txRepo *repository.Repository, base string, refresh bool) (string, error) {
	taken, ok := r.reserved[base]
	if !ok || refresh {
		names, err := txRepo.Identity.ListUsernamesWithPrefix(ctx, base)
		if err != nil {
			return "", fmt.Errorf("load usernames for %q: %w", base, err)
		}
		if taken == nil {
			taken = make(map[string]struct{}, len(names))
		}
		for _, n := range names {
			taken[n] = struct{}{}
		}
		r.reserved[base] = taken
	}

	candidate := base
	for n := 2; ; n++ {
		if _, used := taken[candidate]; !used {
			break
		}
		candidate = base + "_" + strconv.Itoa(n)
	}
	taken[candidate] = struct{}{}
	return candidate, nil
}

// unusableCredential is computed once per run: a marker followed by the hash
// of random bytes nobody knows, so the identity cannot authenticate.
func (r *IdentityResolver) unusableCredential() (string, error) {
	if r.credential != "" {
		return r.credential, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(secret, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	r.credential = unusablePasswordTag + string(hash)
	return r.credential, nil
}

func (r *IdentityResolver) grantSupervisor(ctx context.Context, txRepo *repository.Repository, id int64) error {
	if _, done := r.granted[id]; done || r.opts.DryRun || id <= 0 {
		return nil
	}
	if r.supervisorID == 0 {
		role, err := txRepo.Role.GetByName(ctx, model.RoleSupervisor)
		if err != nil {
			return fmt.Errorf("load supervisor role: %w", err)
		}
		r.supervisorID = role.ID
	}
	if err := txRepo.Role.Grant(ctx, id, r.supervisorID); err != nil {
		return fmt.Errorf("grant supervisor role: %w", err)
	}
	r.granted[id] = struct{}{}
	r.pendingRoles = append(r.pendingRoles, id)
	return nil
}

// ── supervisor links ──

// LinkSupervisor queues worker → supervisor; a later link for the same worker wins.
func (r *IdentityResolver) LinkSupervisor(workerID, supervisorID int64) {
	if workerID == supervisorID {
		return
	}
	r.links[workerID] = supervisorID
}

// PendingLinks number of queued links.
func (r *IdentityResolver) PendingLinks() int { return len(r.links) }

// DropLinks clears the queue without writing and reports how many links it held.
func (r *IdentityResolver) DropLinks() int {
	n := len(r.links)
	r.links = make(map[int64]int64)
	return n
}

// ApplyLinks writes the queued links grouped by supervisor and clears the
// queue. Rows already pointing at the same supervisor are not rewritten.
func (r *IdentityResolver) ApplyLinks(ctx context.Context, txRepo *repository.Repository) (int, error) {
	if len(r.links) == 0 {
		return 0, nil
	}
	bySupervisor := make(map[int64][]int64)
	for worker, sup := range r.links {
		if worker <= 0 || sup <= 0 {
			continue
		}
		bySupervisor[sup] = append(bySupervisor[sup], worker)
	}
	r.links = make(map[int64]int64)

	sups := make([]int64, 0, len(bySupervisor))
	for sup := range bySupervisor {
		sups = append(sups, sup)
	}
	sort.Slice(sups, func(i, j int) bool { return sups[i] < sups[j] })

	var total int64
	for _, sup := range sups {
		n, err := txRepo.Identity.SetSupervisor(ctx, sup, bySupervisor[sup])
		if err != nil {
			return 0, fmt.Errorf("link supervisor %d: %w", sup, err)
		}
		total += n
	}
	return int(total), nil
}

// ── unit of work ──

// Commit marks creations since the last Commit as durable.
func (r *IdentityResolver) Commit() {
	r.pending = r.pending[:0]
	r.pendingRoles = r.pendingRoles[:0]
}

// Discard forgets creations since the last Commit, after a rollback.
func (r *IdentityResolver) Discard() {
	for _, key := range r.pending {
		delete(r.provisioned, r.byKey[key])
		delete(r.byKey, key)
		delete(r.display, key)
	}
	for _, id := range r.pendingRoles {
		delete(r.granted, id)
	}
	r.created -= len(r.pending)
	r.pending = r.pending[:0]
	r.pendingRoles = r.pendingRoles[:0]
	r.links = make(map[int64]int64)
	r.candidates = nil
}

// ── suggestions ──

// Suggest returns up to n known display names resembling raw.
func (r *IdentityResolver) Suggest(raw string, n int) []string {
	display, _ := normalize.Normalize(raw)
	if display == "" || n <= 0 {
		return nil
	}
	if r.candidates == nil {
		r.candidates = make([]string, 0, len(r.display))
		for _, d := range r.display {
			r.candidates = append(r.candidates, d)
		}
		sort.Strings(r.candidates)
	}

	ranks := fuzzy.RankFindNormalizedFold(display, r.candidates)
	if len(ranks) == 0 {
		// reversed "Last First" spellings: match on the surname alone
		first, last := normalize.SplitName(display)
		token := last
		if token == "" {
			token = first
		}
		ranks = fuzzy.RankFindNormalizedFold(token, r.candidates)
	}
	sort.Sort(ranks)

	out := make([]string, 0, n)
	for _, rank := range ranks {
		if len(out) == n {
			break
		}
		out = append(out, rank.Target)
	}
	return out
}
