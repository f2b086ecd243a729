// Package docs contains the OpenAPI documentation for the file store gateway
//
//	@title			File Store API
//	@version		1.0
//	@description	Stores named files in private and public containers of an Azure, S3 or local blob storage backend.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//	@schemes	http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				API key for authentication
//
//	@tag.name			Files
//	@tag.description	Upload, download, list and delete files
//
//	@tag.name			Containers
//	@tag.description	Container lifecycle operations
package docs
