package source

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FetchFTP downloads an ftp:// URL into dir and returns the local path.
// Anonymous login is used when the URL carries no credentials.
func FetchFTP(ctx context.Context, rawURL, dir string, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	host, remotePath, user, pass, err := parseFTPURL(rawURL)
	if err != nil {
		return "", err
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return "", eris.Wrapf(err, "source: ftp dial %s", host)
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login(user, pass); err != nil {
		return "", eris.Wrap(err, "source: ftp login")
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return "", eris.Wrapf(err, "source: ftp retrieve %s", remotePath)
	}
	defer func() { _ = resp.Close() }()

	localPath := filepath.Join(dir, filepath.Base(remotePath))
	out, err := os.Create(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "source: create %s", localPath)
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, resp)
	if err != nil {
		return "", eris.Wrapf(err, "source: download %s", remotePath)
	}

	zap.L().Debug("source: ftp download complete",
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
	)
	return localPath, nil
}

func parseFTPURL(rawURL string) (host, path, user, pass string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "source: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", "", "", eris.Errorf("source: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return "", "", "", "", eris.New("source: empty path in ftp url")
	}

	user, pass = "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	return host, u.Path, user, pass, nil
}
