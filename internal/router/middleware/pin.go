package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// PinHeader carries the instructor PIN on guarded requests.
const PinHeader = "X-Instructor-Pin"

// PinChecker holds the instructor PIN as a bcrypt hash so the plaintext
// secret never sits in process memory longer than startup.
type PinChecker struct {
	hash []byte
}

func NewPinChecker(pin string) (*PinChecker, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PinChecker{hash: hash}, nil
}

func (p *PinChecker) Check(pin string) bool {
	return bcrypt.CompareHashAndPassword(p.hash, []byte(pin)) == nil
}

// InstructorGuard rejects requests whose PIN header does not match the
// stored instructor secret.
func InstructorGuard(checker *PinChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checker.Check(r.Header.Get(PinHeader)) {
				http.Error(w, "wrong instructor PIN", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
