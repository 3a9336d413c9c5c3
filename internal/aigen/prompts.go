package aigen

import "fmt"

const (
	langEN = "en"
	langIT = "it"
)

// normalizeLanguage collapses anything that is not Italian to English
func normalizeLanguage(language string) string {
	if language == langIT {
		return langIT
	}
	return langEN
}

func systemPrompt(language string) string {
	if language == langIT {
		return "You are a helpful assistant that writes natural, conversational emails in Italian. " +
			"Keep emails concise (100-250 words), friendly, and authentic. " +
			"Avoid being overly formal or salesy."
	}
	return "You are a helpful assistant that writes natural, conversational emails. " +
		"Keep emails concise (100-250 words), friendly, and authentic. " +
		"Avoid being overly formal or salesy."
}

func initialPrompt(topic, tone, length, senderName, language string) string {
	if language == langIT {
		signature := "Termina con un saluto generico come 'Cordiali saluti' o simile."
		if senderName != "" {
			signature = fmt.Sprintf("Firma l'email con '%s' alla fine.", senderName)
		}
		return fmt.Sprintf(
			"Scrivi un'email %s su %s. "+
				"L'email dovrebbe essere %s. "+
				"Inizia con un saluto naturale e termina con una chiusura amichevole. "+
				"%s "+
				"Formato: La prima riga deve essere 'Oggetto: [oggetto email]', "+
				"poi una riga vuota, poi il corpo dell'email. "+
				"Fai in modo che sembri scritta da una persona reale, non un'email di marketing.",
			tone, topic, length, signature,
		)
	}

	signature := "End with a generic closing like 'Best regards' or similar."
	if senderName != "" {
		signature = fmt.Sprintf("Sign the email with '%s' at the end.", senderName)
	}
	return fmt.Sprintf(
		"Write a %s email about %s. "+
			"The email should be %s. "+
			"Start with a natural greeting and end with a friendly closing. "+
			"%s "+
			"Format: First line should be 'Subject: [subject line]', "+
			"then a blank line, then the email body. "+
			"Make it feel like a real person wrote it, not a marketing email.",
		tone, topic, length, signature,
	)
}

func replyPrompt(previousContent, tone, senderName, language string) string {
	if language == langIT {
		signature := "Termina con un saluto generico come 'Cordiali saluti' o simile."
		if senderName != "" {
			signature = fmt.Sprintf("Firma la risposta con '%s' alla fine.", senderName)
		}
		return fmt.Sprintf(
			"Scrivi una risposta %s a questa email:\n\n%s\n\n"+
				"Mantieni la risposta concisa (100-200 parole). "+
				"Riconosci quello che hanno detto e continua la conversazione in modo naturale. "+
				"%s "+
				"Formato: La prima riga deve essere 'Oggetto: Re: [oggetto originale]', "+
				"poi una riga vuota, poi il corpo della risposta. "+
				"Rendila conversazionale e autentica.",
			tone, previousContent, signature,
		)
	}

	signature := "End with a generic closing like 'Best regards' or similar."
	if senderName != "" {
		signature = fmt.Sprintf("Sign the reply with '%s' at the end.", senderName)
	}
	return fmt.Sprintf(
		"Write a %s reply to this email:\n\n%s\n\n"+
			"Keep the reply concise (100-200 words). "+
			"Acknowledge what they said and continue the conversation naturally. "+
			"%s "+
			"Format: First line should be 'Subject: Re: [original subject]', "+
			"then a blank line, then the reply body. "+
			"Make it conversational and authentic.",
		tone, previousContent, signature,
	)
}

var lengthBuckets = []string{
	"short (100-150 words)",
	"medium (150-200 words)",
}
