// Package httpapi exposes an [authcore.Engine] over HTTP using gin.
//
// Routes live under /api/v1/users. Successful responses use the envelope
//
//	{"statusCode": 200, "data": {...}, "message": "...", "success": true}
//
// and failures carry the taxonomy name from [authcore.ErrorKind] in "error".
// Tokens are delivered both in the body and as HttpOnly cookies configured by
// [authcore.CookieConfig].
package httpapi
