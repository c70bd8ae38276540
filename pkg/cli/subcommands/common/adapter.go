package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/opst/savethat/pkg/cli/config/profiles"
	"github.com/opst/savethat/pkg/logging"
	"github.com/opst/savethat/pkg/node"
	"github.com/opst/savethat/pkg/storage"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

// Session is what commands work with: the profile of the project and its storage.
type Session struct {
	// name of the profile
	Project    string
	ProjectDir string

	Profile *profiles.Profile
	Storage *storage.Storage

	// logger for runs and transfers.
	Logger *zap.Logger
}

// Environment returns the environment to create nodes in.
func (s Session) Environment() node.Environment {
	return node.Environment{
		Storage:    s.Storage,
		Env:        s.Profile.Env,
		Logger:     s.Logger,
		ProjectDir: s.ProjectDir,
	}
}

// Close releases the storage of the session.
func (s Session) Close() error {
	_ = s.Logger.Sync()
	return s.Storage.Close()
}

// OpenSession loads the profile and opens its storage.
//
// When the profile store or the profile is missing,
// a profile keeping runs in "data_storage" next to the project directory is created and saved.
func OpenSession(ctx context.Context, logger *log.Logger, cf CommonFlags, stderr io.Writer) (Session, error) {
	store, err := profiles.LoadProfileStore(cf.ProfileStore)
	if errors.Is(err, profiles.ErrProfileStoreNotFound) {
		store = profiles.ProfileStore{}
	} else if err != nil {
		return Session{}, fmt.Errorf(
			"%w: failed to load profile store (%s)", err, cf.ProfileStore,
		)
	}

	prof, ok := store[cf.Profile]
	if !ok || prof == nil {
		prof = profiles.Default(cf.ProjectDir)
		store[cf.Profile] = prof
		if err := store.Save(cf.ProfileStore); err != nil {
			return Session{}, fmt.Errorf(
				"%w: failed to save profile store (%s)", err, cf.ProfileStore,
			)
		}
		logger.Printf("no profile for %s. Runs are not synced with remote. Run `setup` to configure it.", cf.Profile)
		logger.Printf("runs will be stored in %s", prof.LocalPath)
	}
	if err := prof.Verify(); err != nil {
		return Session{}, fmt.Errorf(
			"%w: profile '%s' in %s is broken. Run `setup` again", err, cf.Profile, cf.ProfileStore,
		)
	}

	zl := logging.New(stderr, cf.Debug)
	remote, err := prof.OpenRemote(ctx)
	if err != nil {
		return Session{}, err
	}
	opts := []storage.Option{storage.WithLogger(zl)}
	if remote != nil {
		opts = append(opts, storage.WithRemote(remote))
	}
	st, err := storage.New(prof.LocalPath, opts...)
	if err != nil {
		if remote != nil {
			remote.Close()
		}
		return Session{}, err
	}

	return Session{
		Project:    cf.Profile,
		ProjectDir: cf.ProjectDir,
		Profile:    prof,
		Storage:    st,
		Logger:     zl,
	}, nil
}

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		logger := log.New(cl.Stderr(), "", log.LstdFlags)
		logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))

		return task(ctx, logger, commonFlag, cl, newpos)
	}
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	session Session,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) (err error) {
		session, err := OpenSession(ctx, logger, commonFlag, cl.Stderr())
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Close())
		}()
		return task(ctx, logger, session, cl, params)
	})
}
