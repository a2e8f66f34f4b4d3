package smoke

import "fmt"

// verifyTotals checks that the stored total grew by exactly the number of
// accepted submissions. Only meaningful against an otherwise idle service.
func verifyTotals(before, after *Totals, accepted int) error {
	if before == nil || after == nil {
		return fmt.Errorf("%w: missing totals", ErrVerify)
	}
	if grew := after.Total - before.Total; grew != int64(accepted) {
		return fmt.Errorf("%w: total grew by %d, expected %d", ErrVerify, grew, accepted)
	}
	if after.WithEmail < before.WithEmail {
		return fmt.Errorf("%w: rows with email shrank from %d to %d", ErrVerify, before.WithEmail, after.WithEmail)
	}
	return nil
}
