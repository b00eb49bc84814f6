package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"trove/api/internal/flow"
	"trove/api/internal/util"
)

// MemoryStore keeps everything in process. It backs STORE=memory and the HTTP
// tests, and follows the same rules as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]User
	refresh  map[string]refreshEntry
	revoked  map[string]time.Time
	contents map[string]ownedContent
	flows    map[string]*flow.Flow
	now      func() time.Time
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type ownedContent struct {
	ownerID   string
	content   flow.Content
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		refresh:  make(map[string]refreshEntry),
		revoked:  make(map[string]time.Time),
		contents: make(map[string]ownedContent),
		flows:    make(map[string]*flow.Flow),
		now:      time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) EnsureUserByName(_ context.Context, name string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.DisplayName == name {
			return user, nil
		}
	}
	now := s.now().UTC()
	user := User{
		ID:          util.NewID("usr"),
		DisplayName: name,
		Email:       strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@local.trove.dev",
		Role:        "user",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
	}
	if user.Role == "" {
		user.Role = "user"
	}
	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.refresh[tokenHash]; ok {
		entry.revoked = true
		s.refresh[tokenHash] = entry
	}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refresh[tokenHash]
	if !ok || entry.revoked || !entry.expiresAt.After(s.now()) {
		return User{}, ErrNotFound
	}
	user, ok := s.users[entry.userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = exp
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *MemoryStore) InsertContent(_ context.Context, ownerID string, content flow.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[content.ID] = ownedContent{ownerID: ownerID, content: content, createdAt: s.now()}
	return nil
}

func (s *MemoryStore) GetContent(_ context.Context, contentID string) (flow.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.contents[contentID]
	if !ok {
		return flow.Content{}, ErrNotFound
	}
	return entry.content, nil
}

func (s *MemoryStore) ListContents(_ context.Context, ownerID, query string, limit int) ([]flow.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	query = strings.ToLower(strings.TrimSpace(query))
	matched := make([]ownedContent, 0)
	for _, entry := range s.contents {
		if entry.ownerID != ownerID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(entry.content.Title), query) &&
			!strings.Contains(strings.ToLower(entry.content.Creator), query) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].createdAt.Equal(matched[j].createdAt) {
			return matched[i].createdAt.After(matched[j].createdAt)
		}
		return matched[i].content.ID < matched[j].content.ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	items := make([]flow.Content, len(matched))
	for i, entry := range matched {
		items[i] = entry.content
	}
	return items, nil
}

func (s *MemoryStore) UsageCounts(_ context.Context, contentIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(contentIDs))
	for _, id := range contentIDs {
		want[id] = struct{}{}
	}
	counts := make(map[string]int, len(contentIDs))
	for _, f := range s.flows {
		for id := range f.ContentIDs() {
			if _, ok := want[id]; ok {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (s *MemoryStore) ListFlows(_ context.Context, ownerID string) ([]FlowSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]FlowSummary, 0)
	for _, f := range s.flows {
		if f.OwnerID != ownerID {
			continue
		}
		summary := FlowSummary{
			ID:         f.ID,
			Name:       f.Name,
			Visibility: f.Visibility,
			OwnerID:    f.OwnerID,
			CoverImage: f.CoverImage,
			StageCount: len(f.Stages),
			UpdatedAt:  f.UpdatedAt,
		}
		for _, stage := range f.Stages {
			summary.NodeCount += len(stage.Nodes)
		}
		items = append(items, summary)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) GetFlow(_ context.Context, flowID string) (flow.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok {
		return flow.Flow{}, ErrNotFound
	}
	return f.Clone(), nil
}

func (s *MemoryStore) CreateFlow(_ context.Context, f flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	stored := f.Clone()
	stored.CreatedAt, stored.UpdatedAt = now, now
	stored.Visibility = flow.NormalizeVisibility(string(f.Visibility))
	for i := range stored.Stages {
		if stored.Stages[i].Nodes == nil {
			stored.Stages[i].Nodes = []flow.Node{}
		}
	}
	stored.Renumber()
	s.flows[f.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateFlow(_ context.Context, flowID string, patch FlowPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok {
		return ErrNotFound
	}
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.Visibility != nil {
		f.Visibility = *patch.Visibility
	}
	if patch.CoverImage != nil {
		f.CoverImage = *patch.CoverImage
	}
	s.touch(f)
	return nil
}

func (s *MemoryStore) DeleteFlow(_ context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[flowID]; !ok {
		return ErrNotFound
	}
	delete(s.flows, flowID)
	return nil
}

func (s *MemoryStore) FlowIDForStage(_ context.Context, stageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, _, err := s.stageLocked(stageID)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

func (s *MemoryStore) FlowIDForNode(_ context.Context, nodeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, _, _, err := s.nodeLocked(nodeID)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

func (s *MemoryStore) AddStage(_ context.Context, flowID string, stage flow.Stage) (flow.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok {
		return flow.Stage{}, ErrNotFound
	}
	stage.Position = len(f.Stages)
	stage.Nodes = []flow.Node{}
	f.Stages = append(f.Stages, stage)
	s.touch(f)
	return stage.Clone(), nil
}

func (s *MemoryStore) RenameStage(_ context.Context, stageID, name string) (flow.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, idx, err := s.stageLocked(stageID)
	if err != nil {
		return flow.Stage{}, err
	}
	f.Stages[idx].Name = name
	s.touch(f)
	out := f.Stages[idx]
	out.Nodes = []flow.Node{}
	return out, nil
}

func (s *MemoryStore) DeleteStage(_ context.Context, stageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, idx, err := s.stageLocked(stageID)
	if err != nil {
		return err
	}
	f.Stages = append(f.Stages[:idx], f.Stages[idx+1:]...)
	flow.RenumberStages(f.Stages)
	s.touch(f)
	return nil
}

func (s *MemoryStore) ReorderStages(_ context.Context, flowID string, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok {
		return ErrNotFound
	}
	if err := checkPermutation(flow.StageIDs(f.Stages), orderedIDs); err != nil {
		return err
	}
	byID := make(map[string]flow.Stage, len(f.Stages))
	for _, stage := range f.Stages {
		byID[stage.ID] = stage
	}
	for i, id := range orderedIDs {
		f.Stages[i] = byID[id]
	}
	flow.RenumberStages(f.Stages)
	s.touch(f)
	return nil
}

func (s *MemoryStore) CreateNode(_ context.Context, stageID string, node flow.Node, beforeNodeID string) (flow.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, idx, err := s.stageLocked(stageID)
	if err != nil {
		return flow.Node{}, err
	}
	entry, ok := s.contents[node.ContentID]
	if !ok {
		return flow.Node{}, ErrNotFound
	}
	if f.HasContent(node.ContentID) {
		return flow.Node{}, ErrDuplicateContent
	}
	stage := &f.Stages[idx]
	at := len(stage.Nodes)
	if beforeNodeID != "" {
		if at = flow.NodeIndex(stage.Nodes, beforeNodeID); at < 0 {
			return flow.Node{}, ErrAnchorNotFound
		}
	}
	node.Content = entry.content
	node.Position = at
	stage.Nodes = append(stage.Nodes, flow.Node{})
	copy(stage.Nodes[at+1:], stage.Nodes[at:])
	stage.Nodes[at] = node
	flow.RenumberNodes(stage.Nodes)
	s.touch(f)
	return node, nil
}

func (s *MemoryStore) ReorderNodes(_ context.Context, stageID string, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, idx, err := s.stageLocked(stageID)
	if err != nil {
		return err
	}
	stage := &f.Stages[idx]
	if err := checkPermutation(flow.NodeIDs(stage.Nodes), orderedIDs); err != nil {
		return err
	}
	stage.Nodes = pickNodes(stage.Nodes, orderedIDs)
	s.touch(f)
	return nil
}

func (s *MemoryStore) MoveNode(_ context.Context, nodeID, toStageID string, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, from, _, err := s.nodeLocked(nodeID)
	if err != nil {
		return err
	}
	to := f.StageIndex(toStageID)
	if to < 0 {
		return ErrNotFound
	}
	expected := flow.NodeIDs(f.Stages[to].Nodes)
	if from != to {
		expected = append(expected, nodeID)
	}
	if err := checkPermutation(expected, orderedIDs); err != nil {
		return err
	}
	pool := append(append([]flow.Node{}, f.Stages[to].Nodes...), f.Stages[from].Nodes...)
	if from != to {
		rest := make([]flow.Node, 0, len(f.Stages[from].Nodes)-1)
		for _, n := range f.Stages[from].Nodes {
			if n.ID != nodeID {
				rest = append(rest, n)
			}
		}
		flow.RenumberNodes(rest)
		f.Stages[from].Nodes = rest
	}
	f.Stages[to].Nodes = pickNodes(pool, orderedIDs)
	s.touch(f)
	return nil
}

func (s *MemoryStore) UpdateNode(_ context.Context, nodeID, description string) (flow.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, si, ni, err := s.nodeLocked(nodeID)
	if err != nil {
		return flow.Node{}, err
	}
	f.Stages[si].Nodes[ni].Description = description
	s.touch(f)
	return f.Stages[si].Nodes[ni], nil
}

func (s *MemoryStore) RemoveNode(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, si, ni, err := s.nodeLocked(nodeID)
	if err != nil {
		return err
	}
	nodes := f.Stages[si].Nodes
	f.Stages[si].Nodes = append(nodes[:ni], nodes[ni+1:]...)
	flow.RenumberNodes(f.Stages[si].Nodes)
	s.touch(f)
	return nil
}

func (s *MemoryStore) stageLocked(stageID string) (*flow.Flow, int, error) {
	for _, f := range s.flows {
		if idx := f.StageIndex(stageID); idx >= 0 {
			return f, idx, nil
		}
	}
	return nil, -1, ErrNotFound
}

func (s *MemoryStore) nodeLocked(nodeID string) (*flow.Flow, int, int, error) {
	for _, f := range s.flows {
		if si, ni, ok := f.LocateNode(nodeID); ok {
			return f, si, ni, nil
		}
	}
	return nil, -1, -1, ErrNotFound
}

func (s *MemoryStore) touch(f *flow.Flow) {
	f.UpdatedAt = s.now().UTC()
}

// pickNodes returns the nodes named by ids, in that order, renumbered.
func pickNodes(pool []flow.Node, ids []string) []flow.Node {
	byID := make(map[string]flow.Node, len(pool))
	for _, n := range pool {
		byID[n.ID] = n
	}
	out := make([]flow.Node, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	flow.RenumberNodes(out)
	return out
}
