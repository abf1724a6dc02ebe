package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/services/identity"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that
// knows how to handle our errors: validation surfaces become field
// maps, store auth errors pass their message through verbatim, and row
// CRUD failures become blocking notifications for the UI.
func newAppHTTPErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *identity.AuthError:
			// surfaced verbatim; "Email not confirmed" stays
			// distinguishable for display, nothing branches on it
			code = origErr.Status
			if code < 400 || code > 499 {
				code = http.StatusBadRequest
			}
			message = origErr.Message
		case *identity.DataError:
			code = http.StatusBadGateway
			message = origErr.Error()
			logger.Error("store data error", errors.Wrap(err, "data error"))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg))

			if core.IsShutdown(err) {
				logger.Fatal("integrity issue, shutting down", errors.Wrap(err, msg))
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			switch {
			case ctx.Request().Method == http.MethodHead:
				err = ctx.NoContent(code)
			case code == http.StatusNotFound || code == http.StatusMethodNotAllowed:
				// never a blank page: back to the root
				err = redirectHome(ctx)
			default:
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
