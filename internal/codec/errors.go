package codec

import "errors"

var errUnsupported = errors.New("codec: unsupported value type")
