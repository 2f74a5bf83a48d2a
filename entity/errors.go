package entity

import "errors"

var (
	errInvalidTemplate        = errors.New("push_template must be one of full_email, full, short, title_only")
	errPollIntervalTooLow     = errors.New("poll_interval_seconds must be >= 5")
	errRuleNameRequired       = errors.New("name is required")
	errInvalidPushFilterField = errors.New("field must be one of sender, domain, subject, body")
	errInvalidPushFilterMode  = errors.New("mode must be one of allow, deny")
)
