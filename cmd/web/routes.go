package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	api := alice.New()

	mux.Handle("POST /api/interviews", api.ThenFunc(app.startInterview))
	mux.Handle("GET /api/interviews/{id}/next-question", api.ThenFunc(app.nextQuestion))
	mux.Handle("POST /api/interviews/{id}/answers", api.ThenFunc(app.answerQuestion))

	mux.Handle("POST /api/businesses/{id}/wiki-builds", api.ThenFunc(app.buildWiki))
	mux.Handle("GET /api/businesses/{id}/wiki-builds/latest", api.ThenFunc(app.buildStatus))
	mux.Handle("POST /api/wiki-builds/{id}/cancel", api.ThenFunc(app.cancelBuild))

	mux.Handle("GET /api/healthy", api.ThenFunc(app.healthy))

	return app.recoverPanic(app.logRequest(secureHeaders(mux)))
}
