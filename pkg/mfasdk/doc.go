/*
Package mfasdk provides a client SDK for the two-factor authentication service.

# Overview

The service sits behind a primary login. Once a password has been accepted the
login service asks for a challenge; if the user has MFA enabled it gets back a
short-lived pending token which the end user exchanges, together with a TOTP or
backup code, for a verified identity.

	client := mfasdk.NewSDKClient("https://mfa.example.com")

	// Called by the login service after the password check.
	challenge, err := client.Challenge(ctx, serviceToken, userID, email)
	if mfasdk.IsErrorCode(err, mfasdk.ErrorCodeMFANotConfigured) {
		// no second factor, finish the login
	}

	// Called with the code the user typed.
	verified, err := client.Verify(ctx, challenge.MFAToken, mfasdk.MethodTOTP, code)

# Enrollment

Enrollment endpoints are authenticated with the host application's bearer
access token:

	setup, err := client.Enroll(ctx, accessToken)
	// show setup.QRCodePNG and setup.BackupCodes to the user
	_, err = client.Confirm(ctx, accessToken, code)

	status, err := client.Status(ctx, accessToken)
	codes, err := client.RegenerateBackupCodes(ctx, accessToken, code)
	err = client.Disable(ctx, accessToken, code)

# Error Handling

Every non-2xx response is returned as an *APIError:

	verified, err := client.Verify(ctx, token, mfasdk.MethodTOTP, code)
	var apiErr *mfasdk.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case mfasdk.ErrorCodeInvalidCode:
			// apiErr.RemainingAttempts is set
		case mfasdk.ErrorCodeTooManyAttempts:
			// locked out
		case mfasdk.ErrorCodeInvalidMFAToken:
			// start over from the password step
		}
	}

The server uses the same type to write its error responses.
*/
package mfasdk
