package speech

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/ashureev/lingua-lessons/internal/speech"

var logger = otelslog.NewLogger(scopeName)
