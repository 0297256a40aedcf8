package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"doit/internal/exitcode"
	"doit/internal/location"
	"doit/internal/media"
	"doit/internal/service"
	"doit/internal/views"
)

// fail reports err on errOut and returns its exit code.
//
// An expired session has already been reported by the gateway's redirect
// hook, so nothing more is printed for it.
func fail(errOut io.Writer, err error) int {
	var verr *media.ValidationError
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return exitcode.AuthError
	case errors.Is(err, views.ErrNotSignedIn):
		fmt.Fprintln(errOut, "error: not logged in (run: doit login)")
		return exitcode.AuthError
	case errors.As(err, &verr), views.IsValidation(err), errors.Is(err, service.ErrNotFound):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case errors.Is(err, location.ErrPermissionDenied),
		errors.Is(err, location.ErrPositionUnavailable),
		errors.Is(err, location.ErrTimeout):
		fmt.Fprintf(errOut, "error: %s\n", location.Message(err))
		return exitcode.UserError
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}

// usage reports a bad invocation of c.
func usage(errOut io.Writer, c Command) int {
	fmt.Fprintf(errOut, "usage: %s\n", c.Usage())
	return exitcode.UserError
}

// ok prints the acknowledgement unless quiet.
func ok(out io.Writer, quiet bool, text string) int {
	if !quiet {
		fmt.Fprintln(out, text)
	}
	return exitcode.Success
}

// readLine reads one trimmed line from r.
func readLine(r io.Reader) (string, error) {
	if r == nil {
		return "", io.EOF
	}
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(sc.Text()), nil
}
