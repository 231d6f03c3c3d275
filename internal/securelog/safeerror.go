package securelog

import (
	"strings"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

// Client facing messages used in production.
const (
	MessageValidation = "Les données fournies sont invalides."
	MessageAuth       = "Authentification requise ou invalide."
	MessagePermission = "Vous n'avez pas les permissions nécessaires pour cette action."
	MessageNotFound   = "La ressource demandée est introuvable."
	MessageRateLimit  = "Trop de requêtes. Veuillez réessayer plus tard."
	MessageDatabase   = "Une erreur de base de données est survenue. Veuillez réessayer."
	MessageUpload     = "Le téléversement du fichier a échoué."
	MessageGeneric    = "Une erreur inattendue est survenue. Veuillez réessayer plus tard."
)

var codeMessages = map[dErrors.Code]string{
	dErrors.CodeValidation:   MessageValidation,
	dErrors.CodeInvalidInput: MessageValidation,
	dErrors.CodeBadRequest:   MessageValidation,
	dErrors.CodeUnauthorized: MessageAuth,
	dErrors.CodeForbidden:    MessagePermission,
	dErrors.CodeNotFound:     MessageNotFound,
	dErrors.CodeRateLimited:  MessageRateLimit,
}

// Checked in order; the first category with a matching fragment wins. Auth
// comes before validation since "invalid token" is an auth failure.
var messagePatterns = []struct {
	fragments []string
	message   string
}{
	{[]string{"unauthorized", "unauthenticated", "authentication", "token", "credentials"}, MessageAuth},
	{[]string{"validation", "invalid", "required"}, MessageValidation},
	{[]string{"permission", "forbidden", "access denied", "not allowed"}, MessagePermission},
	{[]string{"not found", "no rows", "does not exist"}, MessageNotFound},
	{[]string{"rate limit", "too many requests"}, MessageRateLimit},
	{[]string{"database", "sql", "connection refused", "constraint", "deadlock"}, MessageDatabase},
	{[]string{"upload", "file too large", "multipart"}, MessageUpload},
}

// SafeErrorMessage turns an internal error into text that can be shown to a
// client. Outside production the raw message is returned. In production only
// one of the fixed messages above is ever returned.
func SafeErrorMessage(err error, production bool) string {
	if err == nil {
		return ""
	}
	if !production {
		return err.Error()
	}

	if msg, ok := codeMessages[dErrors.CodeOf(err)]; ok {
		return msg
	}

	text := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, fragment := range p.fragments {
			if strings.Contains(text, fragment) {
				return p.message
			}
		}
	}
	return MessageGeneric
}
