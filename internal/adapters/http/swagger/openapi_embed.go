package swagger

import _ "embed"

// OpenAPI holds the embedded API specification.
//
//go:embed openapi.yaml
var OpenAPI []byte
