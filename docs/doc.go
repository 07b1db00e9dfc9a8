// Package docs provides generated OpenAPI documentation.
//
// llmserve API
//
//	@title			llmserve API
//	@version		1.0
//	@description	HTTP inference service: generation, streaming, document tasks, structured matching and embeddings.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/alphadeepmind/llmserve
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g doc.go -d ./,../internal/server/endpoints -o ./ --outputTypes go --parseDependency --parseInternal
