// Package gateway is the runtime shared by generated API clients.
//
// A Gateway holds the process-wide configuration (base URL, authorization
// resolver, transport, optional dispatch function) and executes Operation
// descriptors emitted by swagger2client:
//
//	gw := gateway.New(gateway.Config{
//	    URL: "https://petstore.example.com/v2",
//	    GetAuthorization: func(ctx context.Context, sec gateway.Security) (gateway.Credential, error) {
//	        return gateway.Token(os.Getenv("PETSTORE_TOKEN")), nil
//	    },
//	})
//	pet, err := gateway.Do[*models.Pet](ctx, gw, getPetByIdOperation, gateway.Params{"petId": 42})
//
// Every call picks the first security alternative whose requirements all
// resolve before any network activity, then builds and sends the request. Failures are
// reported as *AuthorizationError, *RequestError or *TransportError. Nothing
// is retried; wrap the Transport or the authorization resolver to add that.
//
// In dispatch mode a call emits one start Action followed by exactly one
// success or error Action.
package gateway
