package i18n

import (
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var builtin = map[language.Tag][]*i18n.Message{
	language.English: {
		{ID: MsgWelcome, Other: "Hi {{.Name}}! I'm your bookkeeping assistant. Ask me about revenue, expenses, invoices or cash flow, or send me a receipt or invoice to read.\n\nType /help to see what I can do."},
		{ID: MsgHelp, Other: "Commands:\n/summary - what we have talked about\n/tips - recommendations for you\n/insights - what I learned from your books\n/analyze - re-analyze your records\n/stats - learning statistics\n/company <name> - set your company name\n/industry <industry> - set your industry\n/style <casual|formal|technical> - answer style\n/focus <area, area> - topics you care about\n/lang <code> - reply language\n/export - download your data\n/forget - delete everything I know about you\n\nSend a photo of a receipt or an invoice PDF to extract its data."},
		{ID: MsgRateLimitExceeded, Other: "You're sending messages too fast. Please wait a moment and try again."},
		{ID: MsgError, Other: "Something went wrong. Please try again."},
		{ID: MsgApology, Other: "I'm sorry, I couldn't come up with an answer right now. Please try again in a moment."},
		{ID: MsgProcessing, Other: "Thinking..."},
		{ID: MsgUnknownCommand, Other: "Unknown command. Type /help to see the available commands."},
		{ID: MsgUsage, Other: "Usage: {{.Usage}}"},
		{ID: MsgInvalidInput, Other: "I can't read that message. Please send plain text under 4096 characters."},
		{ID: MsgNoInsights, Other: "I haven't learned enough about your business yet. Try /analyze once you have a few months of records."},
		{ID: MsgNoTips, Other: "No recommendations yet. Keep chatting about your finances and I'll tailor some."},
		{ID: MsgInsightsHeader, Other: "Here's what I've learned about your business:"},
		{ID: MsgTipsHeader, Other: "Recommendations for you:"},
		{ID: MsgAnalysisDone, Other: "Analysis complete. I found {{.Count}} patterns in your records."},
		{ID: MsgStats, Other: "Patterns learned: {{.Total}}\nHigh confidence: {{.High}}\nDocuments processed: {{.Documents}}\nLast updated: {{.Updated}}"},
		{ID: MsgExportReady, Other: "Here is everything I have stored about you."},
		{ID: MsgDataDeleted, Other: "Done. I've deleted everything I knew about you."},
		{ID: MsgLanguageChanged, Other: "I'll reply in English from now on."},
		{ID: MsgLanguageInvalid, Other: "Unsupported language. Available: {{.Languages}}"},
		{ID: MsgStyleChanged, Other: "Answer style set to {{.Style}}."},
		{ID: MsgStyleInvalid, Other: "Unknown style. Use casual, formal or technical."},
		{ID: MsgFocusUpdated, Other: "Focus areas updated: {{.Areas}}"},
		{ID: MsgCompanyUpdated, Other: "Company name set to {{.Name}}."},
		{ID: MsgIndustryUpdated, Other: "Industry set to {{.Industry}}."},
		{ID: MsgDocumentProcessed, Other: "I read your {{.Kind}} and extracted {{.Count}} fields:"},
		{ID: MsgDocumentFailed, Other: "Sorry, I couldn't read that file. Please try a clearer image or a different format."},
		{ID: MsgFileTooLarge, Other: "That file is too large. The limit is {{.Limit}} MB."},
	},
	language.Spanish: {
		{ID: MsgWelcome, Other: "¡Hola {{.Name}}! Soy tu asistente contable. Pregúntame sobre ingresos, gastos, facturas o flujo de caja, o envíame un recibo o una factura para leerla.\n\nEscribe /help para ver lo que puedo hacer."},
		{ID: MsgHelp, Other: "Comandos:\n/summary - de qué hemos hablado\n/tips - recomendaciones para ti\n/insights - lo que aprendí de tus libros\n/analyze - volver a analizar tus registros\n/stats - estadísticas de aprendizaje\n/company <nombre> - nombre de tu empresa\n/industry <sector> - tu sector\n/style <casual|formal|technical> - estilo de respuesta\n/focus <área, área> - temas que te interesan\n/lang <código> - idioma de respuesta\n/export - descargar tus datos\n/forget - borrar todo lo que sé de ti\n\nEnvía una foto de un recibo o una factura en PDF para extraer sus datos."},
		{ID: MsgRateLimitExceeded, Other: "Estás enviando mensajes demasiado rápido. Espera un momento e inténtalo de nuevo."},
		{ID: MsgError, Other: "Algo salió mal. Inténtalo de nuevo."},
		{ID: MsgApology, Other: "Lo siento, no pude generar una respuesta en este momento. Inténtalo de nuevo en unos instantes."},
		{ID: MsgProcessing, Other: "Pensando..."},
		{ID: MsgUnknownCommand, Other: "Comando desconocido. Escribe /help para ver los comandos disponibles."},
		{ID: MsgUsage, Other: "Uso: {{.Usage}}"},
		{ID: MsgInvalidInput, Other: "No puedo leer ese mensaje. Envía texto plano de menos de 4096 caracteres."},
		{ID: MsgNoInsights, Other: "Todavía no sé lo suficiente sobre tu negocio. Prueba /analyze cuando tengas algunos meses de registros."},
		{ID: MsgNoTips, Other: "Aún no hay recomendaciones. Sigue hablando de tus finanzas y las personalizaré."},
		{ID: MsgInsightsHeader, Other: "Esto es lo que he aprendido sobre tu negocio:"},
		{ID: MsgTipsHeader, Other: "Recomendaciones para ti:"},
		{ID: MsgAnalysisDone, Other: "Análisis completo. Encontré {{.Count}} patrones en tus registros."},
		{ID: MsgStats, Other: "Patrones aprendidos: {{.Total}}\nAlta confianza: {{.High}}\nDocumentos procesados: {{.Documents}}\nÚltima actualización: {{.Updated}}"},
		{ID: MsgExportReady, Other: "Aquí tienes todo lo que tengo guardado sobre ti."},
		{ID: MsgDataDeleted, Other: "Listo. He borrado todo lo que sabía de ti."},
		{ID: MsgLanguageChanged, Other: "A partir de ahora responderé en español."},
		{ID: MsgLanguageInvalid, Other: "Idioma no disponible. Disponibles: {{.Languages}}"},
		{ID: MsgStyleChanged, Other: "Estilo de respuesta: {{.Style}}."},
		{ID: MsgStyleInvalid, Other: "Estilo desconocido. Usa casual, formal o technical."},
		{ID: MsgFocusUpdated, Other: "Áreas de interés actualizadas: {{.Areas}}"},
		{ID: MsgCompanyUpdated, Other: "Nombre de la empresa: {{.Name}}."},
		{ID: MsgIndustryUpdated, Other: "Sector: {{.Industry}}."},
		{ID: MsgDocumentProcessed, Other: "Leí tu {{.Kind}} y extraje {{.Count}} campos:"},
		{ID: MsgDocumentFailed, Other: "Lo siento, no pude leer ese archivo. Prueba con una imagen más clara o con otro formato."},
		{ID: MsgFileTooLarge, Other: "El archivo es demasiado grande. El límite es {{.Limit}} MB."},
	},
}
