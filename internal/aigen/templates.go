package aigen

// Local composition material for both supported languages. The
// template fallback draws exclusively from these arrays so generated
// mail stays plausible even with every provider down.

var topicsEN = []string{
	"tech news and innovations",
	"productivity tips",
	"industry insights",
	"business strategies",
	"personal development",
	"health and wellness",
	"travel experiences",
	"book recommendations",
	"movie and entertainment",
	"cooking and recipes",
	"photography tips",
	"marketing trends",
	"startup advice",
	"remote work practices",
	"sustainable living",
}

var topicsIT = []string{
	"novità tecnologiche e innovazioni",
	"consigli di produttività",
	"approfondimenti di settore",
	"strategie di business",
	"crescita personale",
	"salute e benessere",
	"esperienze di viaggio",
	"consigli sui libri",
	"cinema e intrattenimento",
	"cucina e ricette",
	"consigli di fotografia",
	"tendenze di marketing",
	"consigli per startup",
	"pratiche di lavoro da remoto",
	"vita sostenibile",
}

var tonesEN = []string{
	"friendly and casual",
	"professional and informative",
	"enthusiastic and energetic",
	"thoughtful and reflective",
	"humorous and light-hearted",
}

var tonesIT = []string{
	"amichevole e informale",
	"professionale e informativo",
	"entusiasta ed energico",
	"riflessivo e ponderato",
	"divertente e leggero",
}

var greetingsEN = []string{
	"Hi there",
	"Hey",
	"Hello",
	"Hi",
	"Good morning",
	"Hope you're doing well",
	"Hope this finds you well",
	"Trust you're having a great day",
}

var greetingsIT = []string{
	"Ciao",
	"Ehi",
	"Salve",
	"Buongiorno",
	"Spero tu stia bene",
	"Spero che tu stia passando una bella giornata",
}

// openings carry a {topic} slot filled at composition time
var openingsEN = []string{
	"I've been thinking about {topic}",
	"I came across something interesting about {topic}",
	"I wanted to share a quick thought on {topic}",
	"Recently, I've been exploring {topic}",
	"Something about {topic} caught my attention",
	"I read something fascinating about {topic}",
	"I had an interesting conversation about {topic}",
}

var openingsIT = []string{
	"Stavo pensando a {topic}",
	"Ho trovato qualcosa di interessante su {topic}",
	"Volevo condividere un pensiero veloce su {topic}",
	"Recentemente, ho esplorato {topic}",
	"Qualcosa su {topic} ha catturato la mia attenzione",
	"Ho letto qualcosa di affascinante su {topic}",
	"Ho avuto una conversazione interessante su {topic}",
}

var middlesEN = []string{
	"and I thought you might find it interesting too.",
	"and I'd love to hear your perspective on it.",
	"and it reminded me of our previous discussions.",
	"and I think it could be relevant to what you're working on.",
	"and I wanted to get your thoughts on this.",
	"and I believe it's worth considering.",
	"and I think it's something worth exploring further.",
}

var middlesIT = []string{
	"e ho pensato che potresti trovarlo interessante anche tu.",
	"e mi piacerebbe sentire la tua opinione al riguardo.",
	"e mi ha ricordato le nostre discussioni precedenti.",
	"e penso potrebbe essere rilevante per quello su cui stai lavorando.",
	"e volevo sapere cosa ne pensi.",
	"e credo valga la pena considerarlo.",
	"e penso sia qualcosa che vale la pena esplorare ulteriormente.",
}

var closingsEN = []string{
	"Let me know what you think when you have a moment.",
	"Would love to hear your thoughts on this.",
	"Looking forward to your take on this.",
	"Curious to know your opinion.",
	"Feel free to share your thoughts anytime.",
	"Let's catch up about this soon.",
	"Would be great to discuss this further.",
}

var closingsIT = []string{
	"Fammi sapere cosa ne pensi quando hai un momento.",
	"Mi piacerebbe sentire la tua opinione su questo.",
	"Non vedo l'ora di sapere cosa ne pensi.",
	"Sono curioso di conoscere la tua opinione.",
	"Sentiti libero di condividere i tuoi pensieri quando vuoi.",
	"Parliamone presto.",
	"Sarebbe bello discuterne più approfonditamente.",
}

var replyAcksEN = []string{
	"Thanks for reaching out!",
	"Great to hear from you!",
	"Thanks for your email!",
	"Appreciate you getting in touch.",
	"Thanks for sharing that.",
	"Good to hear from you.",
	"Thanks for the message!",
}

var replyAcksIT = []string{
	"Grazie per avermi contattato!",
	"Felice di sentirti!",
	"Grazie per la tua email!",
	"Apprezzo che tu mi abbia contattato.",
	"Grazie per aver condiviso questo.",
	"Bello sentirti.",
	"Grazie per il messaggio!",
}

var replyResponsesEN = []string{
	"That's a really interesting point.",
	"I completely agree with what you're saying.",
	"That's something I've been thinking about too.",
	"You raise a great question.",
	"I see what you mean.",
	"That's a perspective I hadn't considered.",
	"That resonates with me.",
}

var replyResponsesIT = []string{
	"È un punto davvero interessante.",
	"Sono completamente d'accordo con quello che dici.",
	"È qualcosa a cui stavo pensando anch'io.",
	"Sollevi un'ottima domanda.",
	"Capisco cosa intendi.",
	"È una prospettiva che non avevo considerato.",
	"Questo risuona con me.",
}

var replyExtrasEN = []string{
	"I've been mulling this over and have some thoughts.",
	"This is definitely worth discussing further.",
	"I think we're on the same page about this.",
	"Let me know if you'd like to explore this more.",
	"I'd be happy to share more details if you're interested.",
}

var replyExtrasIT = []string{
	"Ci ho riflettuto e ho alcuni pensieri.",
	"Vale sicuramente la pena discuterne ulteriormente.",
	"Penso che siamo sulla stessa lunghezza d'onda su questo.",
	"Fammi sapere se vuoi approfondire questo argomento.",
	"Sarei felice di condividere più dettagli se sei interessato.",
}

func staticTopics(language string) []string {
	if language == langIT {
		return topicsIT
	}
	return topicsEN
}

func tones(language string) []string {
	if language == langIT {
		return tonesIT
	}
	return tonesEN
}

func greetings(language string) []string {
	if language == langIT {
		return greetingsIT
	}
	return greetingsEN
}

func openings(language string) []string {
	if language == langIT {
		return openingsIT
	}
	return openingsEN
}

func middles(language string) []string {
	if language == langIT {
		return middlesIT
	}
	return middlesEN
}

func closings(language string) []string {
	if language == langIT {
		return closingsIT
	}
	return closingsEN
}

func replyAcks(language string) []string {
	if language == langIT {
		return replyAcksIT
	}
	return replyAcksEN
}

func replyResponses(language string) []string {
	if language == langIT {
		return replyResponsesIT
	}
	return replyResponsesEN
}

func replyExtras(language string) []string {
	if language == langIT {
		return replyExtrasIT
	}
	return replyExtrasEN
}
