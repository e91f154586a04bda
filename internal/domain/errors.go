package domain

import "errors"

var (
	ErrParse                = errors.New("malformed resource payload")
	ErrInvalidVideoResource = errors.New("video resource without thumbnail")
	ErrNetwork              = errors.New("network request failed")
	ErrNoCredential         = errors.New("no api key available")
	ErrUntrustedSource      = errors.New("media host is not trusted")
	ErrNoLastGoodAvailable  = errors.New("no last good resource available")
)
