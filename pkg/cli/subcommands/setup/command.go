package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/opst/savethat/pkg/cli/config/profiles"
	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/youta-t/flarc"
)

// ErrInputClosed is returned when stdin reaches EOF before all questions are answered.
var ErrInputClosed = errors.New("input closed")

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Set up the profile of this project interactively.",
		struct{}{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task),
		flarc.WithDescription(`
Set up the profile of this project interactively.

The profile tells where runs are stored: the local directory, and optionally
the remote storage which runs are synced with. The remote can be any bucket URL
supported by gocloud.dev/blob (s3://, file://), or an S3 compatible service
(AWS S3, Backblaze B2, MinIO...) given with its endpoint and credentials.

The profile is saved in the profile store (--profile-store), named --profile.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	cf common.CommonFlags,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	store, err := profiles.LoadProfileStore(cf.ProfileStore)
	if errors.Is(err, profiles.ErrProfileStoreNotFound) {
		store = profiles.ProfileStore{}
	} else if err != nil {
		return fmt.Errorf("failed to load profile store (%s): %w", cf.ProfileStore, err)
	}

	prof, err := Ask(cl.Stdin(), cl.Stdout(), cf)
	if err != nil {
		return err
	}
	if old, ok := store[cf.Profile]; ok && old != nil {
		prof.Env = old.Env
	}
	if err := prof.Verify(); err != nil {
		return err
	}

	store[cf.Profile] = prof
	if err := store.Save(cf.ProfileStore); err != nil {
		return fmt.Errorf("failed to save profile store (%s): %w", cf.ProfileStore, err)
	}
	logger.Printf("profile %s is saved to %s", cf.Profile, cf.ProfileStore)
	return nil
}

// Ask builds a profile from answers read from in.
func Ask(in io.Reader, out io.Writer, cf common.CommonFlags) (*profiles.Profile, error) {
	p := &prompter{sc: bufio.NewScanner(in), out: out}

	fmt.Fprintf(out, "Setting up the profile %s\n\n", cf.Profile)
	defaultLocal := profiles.Default(cf.ProjectDir).LocalPath

	if !strings.EqualFold(p.ask("Do you want to set up remote syncing? [y/n] ", ""), "y") {
		if p.err != nil {
			return nil, p.err
		}
		fmt.Fprintln(out, "Skipping remote syncing.")
		fmt.Fprintln(out, "Warning: Your runs will not be synced to remote storage.")
		local := p.ask(fmt.Sprintf("Path of the local data storage: [%s] ", defaultLocal), defaultLocal)
		if p.err != nil {
			return nil, p.err
		}
		return profiles.NoSyncing(local), nil
	}

	remote := &profiles.Remote{}
	remote.URL = p.ask("Remote bucket URL (like s3://bucket or file:///path). Leave empty for an S3 compatible service: ", "")
	if remote.URL == "" {
		remote.Bucket = p.ask("Bucket name: ", "")
		remote.Endpoint = p.ask("Endpoint URL: [AWS S3] ", "")
		remote.Region = p.ask(fmt.Sprintf("Region: [%s] ", profiles.DefaultRegion), "")
		remote.KeyId = p.ask("Access key ID: ", "")
		remote.Key = p.ask("Secret access key: ", "")
		remote.PathStyle = strings.EqualFold(p.ask("Use path-style addressing? [y/N] ", "n"), "y")
	}
	remote.Prefix = p.ask(fmt.Sprintf("Prefix in the bucket: [%s] ", cf.Profile), cf.Profile)
	local := p.ask(fmt.Sprintf("Path of the local data storage: [%s] ", defaultLocal), defaultLocal)
	if p.err != nil {
		return nil, p.err
	}

	return &profiles.Profile{LocalPath: local, Remote: remote}, nil
}

type prompter struct {
	sc  *bufio.Scanner
	out io.Writer
	err error
}

// ask prints question, and returns the answer. Empty answers are replaced with def.
//
// After an error, it returns def without asking.
func (p *prompter) ask(question string, def string) string {
	if p.err != nil {
		return def
	}
	fmt.Fprint(p.out, question)
	if !p.sc.Scan() {
		p.err = p.sc.Err()
		if p.err == nil {
			p.err = ErrInputClosed
		}
		return def
	}
	if a := strings.TrimSpace(p.sc.Text()); a != "" {
		return a
	}
	return def
}
