// Package transfer provides "upload" and "download" commands, which sync a run with the remote storage.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/storage"
	"github.com/youta-t/flarc"
)

const ARG_KEY = "KEY"

func NewUpload() (flarc.Command, error) {
	return flarc.NewCommand(
		"Upload a run to the remote storage.",
		struct{}{},
		flarc.Args{
			{Name: ARG_KEY, Required: true, Help: "Key of the run to be uploaded."},
		},
		common.NewTask(Upload),
		flarc.WithDescription(`
Upload a run to the remote storage.

Files missing in the remote, of different size or newer than the remote copy are uploaded.
When the profile does not sync with remote, it does nothing.
`),
	)
}

func NewDownload() (flarc.Command, error) {
	return flarc.NewCommand(
		"Download a run from the remote storage.",
		struct{}{},
		flarc.Args{
			{Name: ARG_KEY, Required: true, Help: "Key of the run (or a file in a run) to be downloaded."},
		},
		common.NewTask(Download),
		flarc.WithDescription(`
Download a run from the remote storage.

Files missing locally, of different size or newer than the local copy are downloaded.
`),
	)
}

func Upload(
	ctx context.Context,
	logger *log.Logger,
	session common.Session,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	key := cl.Args()[ARG_KEY][0]
	if !session.Storage.HasRemote() {
		logger.Printf("profile %s does not sync with remote. nothing to do.", session.Project)
		return nil
	}

	bar := NewBar(cl.Stderr(), "uploading")
	err := session.Storage.Upload(ctx, key, bar)
	bar.Finish()
	if errors.Is(err, storage.ErrInvalidKey) {
		return errors.Join(flarc.ErrUsage, err)
	} else if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	logger.Printf("uploaded: %s", key)
	return nil
}

func Download(
	ctx context.Context,
	logger *log.Logger,
	session common.Session,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	key := cl.Args()[ARG_KEY][0]

	bar := NewBar(cl.Stderr(), "downloading")
	dest, err := session.Storage.Download(ctx, key, bar)
	bar.Finish()
	if errors.Is(err, storage.ErrNoRemote) {
		return fmt.Errorf("%w: profile %s does not sync with remote", err, session.Project)
	} else if errors.Is(err, storage.ErrInvalidKey) {
		return errors.Join(flarc.ErrUsage, err)
	} else if err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	logger.Printf("downloaded: %s -> %s", key, dest)
	fmt.Fprintln(cl.Stdout(), dest)
	return nil
}
