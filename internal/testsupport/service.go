package testsupport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"reelup/internal/api"
	"reelup/internal/services"
)

// FakeService is an in-memory stand-in for the asset service. Registered
// files get ids asset-1, asset-2, ... and part URLs mem://<id>/<part>.
type FakeService struct {
	mu       sync.Mutex
	next     int
	assets   map[string]*api.Asset
	received map[string]int64
	acks     map[string][]int
	merged   []string
	jobs     []string
	deleted  []string
	user     api.UserData

	// FailPart, when set, is consulted before each PUT is accepted.
	FailPart func(assetID string, part int) error
	// FailJob, when set, is consulted when a worker job is created.
	FailJob func(assetID string) error
	// PutHook runs after a part body has been read.
	PutHook func(assetID string, part int)
}

// NewFakeService returns a service with one project owning a root folder.
func NewFakeService() *FakeService {
	return &FakeService{
		assets:   make(map[string]*api.Asset),
		received: make(map[string]int64),
		acks:     make(map[string][]int),
		user: api.UserData{Projects: []api.Project{{
			ID:   "p1",
			Name: "Feature",
			RootFolder: api.Folder{
				ID:      "root",
				Name:    "Feature",
				Folders: []api.Folder{{ID: "dailies", Name: "Dailies"}},
			},
		}}},
	}
}

// Login accepts any password except "wrong".
func (f *FakeService) Login(_ context.Context, email, password string) (string, string, error) {
	if password == "wrong" {
		return "", "", services.Wrap(services.ErrInvalidCredentials, "login", "", "rejected", nil)
	}
	return "user-" + email, "token-" + email, nil
}

// UserData returns the seeded project tree.
func (f *FakeService) UserData(context.Context, api.Auth) (*api.UserData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.user
	return &data, nil
}

func (f *FakeService) RegisterFileReferences(_ context.Context, _ api.Auth, _ string, files []api.FileSpec) ([]api.FileReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]api.FileReference, len(files))
	for i, file := range files {
		f.next++
		id := fmt.Sprintf("asset-%d", f.next)
		urls := make([]string, file.Parts)
		for p := range urls {
			urls[p] = fmt.Sprintf("mem://%s/%d", id, p+1)
		}
		refs[i] = api.FileReference{ID: id, PartURLs: urls}
		f.assets[id] = &api.Asset{ID: id, Name: file.Name}
	}
	return refs, nil
}

func (f *FakeService) UploadPart(_ context.Context, partURL, _ string, body io.Reader, size int64) error {
	assetID, partStr, _ := strings.Cut(strings.TrimPrefix(partURL, "mem://"), "/")
	var part int
	if _, err := fmt.Sscanf(partStr, "%d", &part); err != nil {
		return fmt.Errorf("bad part url %q", partURL)
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("body had %d bytes, declared %d", n, size)
	}
	if f.PutHook != nil {
		f.PutHook(assetID, part)
	}
	if f.FailPart != nil {
		if err := f.FailPart(assetID, part); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.received[assetID] += n
	f.mu.Unlock()
	return nil
}

func (f *FakeService) CompletePart(_ context.Context, _ api.Auth, assetID string, partNum int) error {
	f.mu.Lock()
	f.acks[assetID] = append(f.acks[assetID], partNum)
	f.mu.Unlock()
	return nil
}

func (f *FakeService) MergeParts(_ context.Context, _ api.Auth, assetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, assetID)
	if asset, ok := f.assets[assetID]; ok {
		asset.FileSize = f.received[assetID]
	}
	return nil
}

func (f *FakeService) CreateWorkerJob(_ context.Context, _ api.Auth, assetID string) error {
	if f.FailJob != nil {
		if err := f.FailJob(assetID); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.jobs = append(f.jobs, assetID)
	f.mu.Unlock()
	return nil
}

func (f *FakeService) DeleteFileReferences(_ context.Context, _ api.Auth, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.assets, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

func (f *FakeService) GetFileReference(_ context.Context, _ api.Auth, id string) (*api.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset, ok := f.assets[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "asset", id, "not found", nil)
	}
	out := *asset
	return &out, nil
}

// PutAsset seeds an existing asset.
func (f *FakeService) PutAsset(asset api.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[asset.ID] = &asset
}

// Merged lists assets whose parts were merged, in call order.
func (f *FakeService) Merged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.merged...)
}

// Jobs lists assets a worker job was created for.
func (f *FakeService) Jobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.jobs...)
}

// Deleted lists asset ids passed to DeleteFileReferences.
func (f *FakeService) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Acks returns the acknowledged part numbers for assetID.
func (f *FakeService) Acks(assetID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.acks[assetID]...)
}

// StaticAuth satisfies upload.AuthSource with fixed credentials.
type StaticAuth struct{}

func (StaticAuth) Auth() (api.Auth, error) {
	return api.Auth{UserID: "u1", Token: "tok", ProjectID: "p1"}, nil
}
