package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates a presented credential that does not resolve.
	ErrInvalidToken = errors.New("invalid token")
	// ErrCaptchaMismatch occurs when a submitted captcha code does not match.
	ErrCaptchaMismatch = errors.New("captcha mismatch")
	// ErrCaptchaThrottled occurs when a captcha is requested too frequently.
	ErrCaptchaThrottled = errors.New("captcha throttled")
)
