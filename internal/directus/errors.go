package directus

import (
	"errors"
	"fmt"

	"github.com/dukerupert/referidos/internal/config"
)

// Kind classifies a failure for display and metrics.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindCredentials Kind = "credentials"
	KindServer      Kind = "server"
	KindValidation  Kind = "validation"
)

// User-facing messages.
const (
	msgLoginTimeout = "Tiempo de espera agotado. Verifica tu conexión a internet."
	msgNetwork      = "No se puede conectar al servidor. Verifica la URL de Directus."
	msgCredentials  = "Credenciales inválidas"
	msgListTimeout  = "Tiempo de espera agotado al cargar datos."
	msgListFailed   = "Error al obtener socios"
	msgCreateFailed = "Error al crear socio"
	msgUpdateFailed = "Error al actualizar socio"
	msgPingFailed   = "El servidor no respondió al ping"
	msgUnexpected   = "Ocurrió un error inesperado"
)

// Error is a classified failure from the collection API.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("directus %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or "" when it is not classified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return ""
}

// UserMessage returns the Spanish text shown to the operator for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return msgUnexpected
}
