package view

import "github.com/onnwee/menulive/internal/fetch"

// labels are the user-facing strings of one language.
type labels struct {
	Title           string
	MainCategory    string
	ViewProducts    string
	ProductsSuffix  string
	Ingredients     string
	Allergens       string
	NoProducts      string
	AlsoIn          string
	Back            string
	Retry           string
	LoadError       string
	ErrorByKind     map[fetch.Kind]string
}

var translations = map[string]labels{
	"it": {
		Title:          "Il nostro menu",
		MainCategory:   "Categoria principale del menu",
		ViewProducts:   "Visualizza Prodotti",
		ProductsSuffix: "prodotti",
		Ingredients:    "Ingredienti",
		Allergens:      "Allergeni",
		NoProducts:     "Nessun prodotto disponibile in questa categoria.",
		AlsoIn:         "Include",
		Back:           "Torna indietro",
		Retry:          "Riprova",
		LoadError:      "Errore nel caricamento",
		ErrorByKind: map[fetch.Kind]string{
			fetch.KindNetwork: "Connessione non disponibile. Verifica la tua connessione.",
			fetch.KindTimeout: "Richiesta scaduta. Il server sta impiegando troppo tempo a rispondere.",
			fetch.KindServer:  "Errore del server. Riprova tra qualche minuto.",
			fetch.KindParsing: "Errore nei dati ricevuti. Contatta il supporto tecnico.",
			fetch.KindUnknown: "Si è verificato un errore imprevisto. Riprova.",
		},
	},
	"en": {
		Title:          "Our menu",
		MainCategory:   "Main menu category",
		ViewProducts:   "View Products",
		ProductsSuffix: "products",
		Ingredients:    "Ingredients",
		Allergens:      "Allergens",
		NoProducts:     "No products available in this category.",
		AlsoIn:         "Includes",
		Back:           "Go back",
		Retry:          "Retry",
		LoadError:      "Loading failed",
		ErrorByKind: map[fetch.Kind]string{
			fetch.KindNetwork: "Connection unavailable. Check your network.",
			fetch.KindTimeout: "Request timed out. The server is taking too long to respond.",
			fetch.KindServer:  "Server error. Please try again in a few minutes.",
			fetch.KindParsing: "The received data is invalid. Please contact support.",
			fetch.KindUnknown: "An unexpected error occurred. Please try again.",
		},
	},
}

func labelsFor(lang string) labels {
	if l, ok := translations[lang]; ok {
		return l
	}
	return translations["it"]
}

func (l labels) errorMessage(kind fetch.Kind) string {
	if msg, ok := l.ErrorByKind[kind]; ok {
		return msg
	}
	return l.ErrorByKind[fetch.KindUnknown]
}
