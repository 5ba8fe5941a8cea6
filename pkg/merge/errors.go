package merge

import "github.com/hashicorp/go-multierror"

// joinErrors combines the close errors of every source into one error. A
// close failure on one source must not prevent the others from being
// closed, so Close always attempts all of them before reporting.
func joinErrors(errs []error) error {
	var result *multierror.Error
	for _, err := range errs {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
