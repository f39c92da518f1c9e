// Package docs provides generated OpenAPI documentation.
//
// Critic API
//
//	@title			Critic API
//	@version		1.0
//	@description	Schema-constrained LLM code review API. Review, explanation, and analysis flows return validated JSON extracted from model output.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/critic
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

import _ "embed"

//go:generate swag init -g ../cmd/critic/serve.go -o ./swagger --parseDependency --parseInternal

//go:embed swagger/swagger.json
var swaggerJSON []byte

// SwaggerJSON returns the checked-in OpenAPI spec.
func SwaggerJSON() []byte { return swaggerJSON }
