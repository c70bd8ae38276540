package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/storage"
)

func (i *impl) list(ctx context.Context, prefix string, remote bool) ([]storage.Entry, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	if remote && i.st.HasRemote() {
		return i.st.RemoteList(ctx, prefix)
	}
	return i.st.LocalList(prefix)
}

func (i *impl) Find(ctx context.Context, q Query) ([]Run, error) {
	entries, err := i.list(ctx, q.Prefix, q.Remote)
	if err != nil {
		return nil, err
	}

	runs := Group(entries)
	found := make([]Run, 0, len(runs))
	for _, r := range runs {
		if q.Match(r) {
			found = append(found, r)
		}
	}
	return found, nil
}

// Match tells whether r satisfies q, except Prefix.
func (q Query) Match(r Run) bool {
	if !q.Status.Match(r.Status) {
		return false
	}
	if q.Before == nil && q.After == nil {
		return true
	}
	if r.Time.IsZero() {
		return false
	}
	if q.Before != nil && r.Time.After(*q.Before) {
		return false
	}
	if q.After != nil && r.Time.Before(*q.After) {
		return false
	}
	return true
}

// Group collects files into runs.
//
// A directory having domain.ArgsFile is a run.
// Each file belongs to its nearest ancestor run, and files not in any run are dropped.
//
// Returned runs are sorted by key.
func Group(entries []storage.Entry) []Run {
	runs := map[string]*Run{}
	for _, e := range entries {
		if path.Base(e.Key) != domain.ArgsFile {
			continue
		}
		key := path.Dir(e.Key)
		if key == "." {
			continue
		}
		node, _ := domain.KeyNode(key)
		t, _ := domain.KeyTime(key)
		runs[key] = &Run{Key: key, Node: node, Time: t, Status: domain.Failed, Files: []File{}}
	}

	for _, e := range entries {
		for dir := path.Dir(e.Key); dir != "." && dir != "/"; dir = path.Dir(dir) {
			r, ok := runs[dir]
			if !ok {
				continue
			}
			rel := strings.TrimPrefix(e.Key, dir+"/")
			r.Files = append(r.Files, File{Path: rel, Size: e.Size, ModTime: e.ModTime})
			if rel == domain.ResultFile {
				r.Status = domain.Completed
			}
			break
		}
	}

	ret := make([]Run, 0, len(runs))
	for _, r := range runs {
		sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })
		ret = append(ret, *r)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Key < ret[j].Key })
	return ret
}

func (i *impl) Get(ctx context.Context, key string, remote bool) (Detail, error) {
	key = strings.Trim(key, "/")
	entries, err := i.list(ctx, key+"/", remote)
	if err != nil {
		return Detail{}, err
	}

	var found *Run
	for _, r := range Group(entries) {
		if r.Key == key {
			found = &r
			break
		}
	}
	if found == nil {
		return Detail{}, fmt.Errorf("%w: %s", ErrRunNotFound, key)
	}

	d := Detail{Run: *found}
	if err := i.readJSON(ctx, path.Join(key, domain.ArgsFile), &d.Args); err != nil {
		return Detail{}, err
	}
	if err := i.readJSON(ctx, path.Join(key, domain.NodeFile), &d.NodeInfo); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Detail{}, err
	}
	if d.Status == domain.Completed {
		var result json.RawMessage
		if err := i.readJSON(ctx, path.Join(key, domain.ResultFile), &result); err != nil {
			return Detail{}, err
		}
		d.Result = result
	}
	return d, nil
}

func (i *impl) readJSON(ctx context.Context, key string, v any) error {
	f, err := i.st.Open(ctx, key)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
