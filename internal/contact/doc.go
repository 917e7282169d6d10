// Package contact implements the POST /api/contact endpoint.
//
// A request passes the shared rate limiter, is decoded strictly, normalized
// and validated, then handed to every configured [Notifier] at once. The
// [Mailer] sends a notification email over SMTP and the [Archiver] keeps a
// JSON copy in S3. The client only gets 202 when all notifiers succeed.
//
// A hidden "website" field works as a honeypot. Filled-in submissions are
// answered exactly like accepted ones and dropped.
package contact
