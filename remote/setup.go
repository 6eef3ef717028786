package remote

import (
	"context"
	stderrors "errors"
	"path"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

// RunSetupScript copies script into the remote user's home on host, marks it
// executable and runs it. A script that exits nonzero is logged and
// tolerated; only transport failures are returned.
func RunSetupScript(ctx context.Context, c Client, host, script string) error {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("operation", "setup_script"),
		zap.String("host", host),
		zap.String("script", script),
	)

	remotePath := path.Base(filepath.ToSlash(script))
	if err := c.CopyFile(ctx, host, script, remotePath); err != nil {
		return err
	}

	quoted := shellquote.Join("./" + remotePath)
	for _, command := range []string{"chmod +x " + shellquote.Join(remotePath), quoted} {
		err := c.Run(ctx, host, command)
		if err == nil {
			continue
		}
		if stderrors.Is(err, ErrNonZeroExit) {
			logger.Warn("Setup command exited nonzero",
				zap.String("command", command),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	logger.Info("Setup script completed")
	return nil
}
