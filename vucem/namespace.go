package vucem

// Namespace URIs of the VUCEM SOAP services. Responses bind arbitrary
// prefixes to these URIs; all lookups key on the URI, never the
// prefix.
const (
	NSSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	NSWSSE    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"

	// wsse:Password type attribute for the cleartext profile.
	PasswordTextType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"

	NSConsultaCompleto = "http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/consultarpedimentocompleto"
	NSConsultaRemesas  = "http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/consultarremesas"
	NSConsultaPartida  = "http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/consultarpartida"
	NSConsultaEstado   = "http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/consultarestadopedimentos"
	NSComunes          = "http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/comunes"
	NSAcuses           = "http://www.ventanillaunica.gob.mx/consulta/acuses/oxml"

	// the digitized-document service is a different vintage entirely.
	NSTempuri = "http://tempuri.org/"
)

// Default endpoint paths, relative to the gateway base URL.
const (
	EndpointCompleto  = "ventanilla-ws-pedimentos/ConsultarPedimentoCompletoService?wsdl"
	EndpointEstado    = "ventanilla-ws-pedimentos/ConsultarEstadoPedimentosService?wsdl"
	EndpointPartidas  = "ventanilla-ws-pedimentos/ConsultarPartidaService?wsdl"
	EndpointRemesas   = "ventanilla-ws-pedimentos/ConsultarRemesasService?wsdl"
	EndpointAcuses    = "ventanilla-acuses-ws/ConsultaAcusesService?wsdl"
	EndpointEDocument = "ventanilla-digitalizar-ws/DigitalizarDocumentoService?wsdl"
)
