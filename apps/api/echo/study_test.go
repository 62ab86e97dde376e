package echoapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/session"
	"github.com/trezcool/elearning/core/srs"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
)

func seedDeck(t *testing.T, app *testApp) (topic.Topic, []flashcard.Flashcard) {
	t.Helper()
	ctx := context.Background()

	tp, err := app.topics.Create(ctx, topic.NewTopic{Name: "Calculus"})
	require.NoError(t, err)
	var cards []flashcard.Flashcard
	for _, nf := range []flashcard.NewFlashcard{
		{TopicID: tp.ID, Type: flashcard.TypeConcept, Question: "Derivative of x^2?", Answer: "2x"},
		{
			TopicID: tp.ID, Type: flashcard.TypeOrderingSteps, Question: "Order the chain rule steps",
			OrderingSteps: []flashcard.OrderingStep{{Content: "Multiply", CorrectOrder: 2}, {Content: "Differentiate outer", CorrectOrder: 1}},
		},
	} {
		fc, err := app.cards.Create(ctx, nf)
		require.NoError(t, err)
		cards = append(cards, fc)
	}
	return tp, cards
}

func Test_flashcardApi(t *testing.T) {
	app := newTestApp(t)
	studentToken := app.token(t, app.createUser(t, "student@test.cd"))
	teacherToken := app.token(t, app.createUser(t, "teacher@test.cd", user.RoleTeacher))
	tp, cards := seedDeck(t, app)

	tests := []httpTest{
		{
			name: "student cannot create", method: http.MethodPost, path: "/v1/flashcards", token: studentToken,
			body: flashcard.NewFlashcard{TopicID: tp.ID, Type: flashcard.TypeConcept, Question: "?"}, wantCode: http.StatusForbidden,
		},
		{
			name: "unknown type", method: http.MethodPost, path: "/v1/flashcards", token: teacherToken,
			body: flashcard.NewFlashcard{TopicID: tp.ID, Type: "Poem", Question: "?"}, wantCode: http.StatusBadRequest,
		},
		{
			name: "create", method: http.MethodPost, path: "/v1/flashcards", token: teacherToken,
			body: flashcard.NewFlashcard{TopicID: tp.ID, Type: flashcard.TypeFillBlank, Question: "d/dx sin x = ___", Answer: "cos x"}, wantCode: http.StatusCreated,
		},
		{name: "retrieve", method: http.MethodGet, path: "/v1/flashcards/" + cards[1].ID, token: studentToken, wantCode: http.StatusOK},
		{name: "settings of unknown topic", method: http.MethodGet, path: "/v1/topics/nope/flashcard-settings", token: studentToken, wantCode: http.StatusNotFound},
		{
			name: "invalid settings", method: http.MethodPut, path: "/v1/topics/" + tp.ID + "/flashcard-settings", token: studentToken,
			body: map[string]string{"flashcard_arrange_mode": "sideways"}, wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	t.Run("query by type", func(t *testing.T) {
		var got []flashcard.Flashcard
		decode(t, app.do(http.MethodGet, "/v1/flashcards?topic_id="+tp.ID+"&type=All", studentToken, nil), &got)
		assert.Len(t, got, 3)

		decode(t, app.do(http.MethodGet, "/v1/flashcards?topic_id="+tp.ID+"&type=Ordering+Steps", studentToken, nil), &got)
		require.Len(t, got, 1)
		assert.Len(t, got[0].OrderingSteps, 2)
	})

	t.Run("settings", func(t *testing.T) {
		var s flashcard.Settings
		decode(t, app.do(http.MethodGet, "/v1/topics/"+tp.ID+"/flashcard-settings", studentToken, nil), &s)
		assert.Equal(t, flashcard.DefaultSettings(), s)

		rec := app.do(http.MethodPut, "/v1/topics/"+tp.ID+"/flashcard-settings", studentToken,
			map[string]string{"flashcard_direction": flashcard.DirectionBack})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		decode(t, app.do(http.MethodGet, "/v1/topics/"+tp.ID+"/flashcard-settings", studentToken, nil), &s)
		assert.Equal(t, flashcard.Settings{ArrangeMode: flashcard.ArrangeChrono, Direction: flashcard.DirectionBack, TypeFilter: flashcard.TypeAll}, s)

		// other users keep the defaults
		other := app.token(t, app.createUser(t, "other@test.cd"))
		decode(t, app.do(http.MethodGet, "/v1/topics/"+tp.ID+"/flashcard-settings", other, nil), &s)
		assert.Equal(t, flashcard.DefaultSettings(), s)
	})
}

func Test_examAndSRS_flow(t *testing.T) {
	app := newTestApp(t)
	studentToken := app.token(t, app.createUser(t, "student@test.cd"))
	otherToken := app.token(t, app.createUser(t, "other@test.cd"))
	tp, cards := seedDeck(t, app)
	app.ai.review = exam.AnswerReview{WhatWasCorrect: "The power rule", WhatToInclude: "Nothing"}

	var review srs.Review
	decode(t, app.do(http.MethodGet, "/v1/srs/review-cards?topic_id="+tp.ID, studentToken, nil), &review)
	assert.True(t, review.NoExams)
	assert.Empty(t, review.Cards)

	rec := app.do(http.MethodGet, "/v1/srs/review-cards", studentToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(http.MethodPost, "/v1/exams", studentToken, StartExamRequest{TopicID: tp.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started StartExamResponse
	decode(t, rec, &started)
	require.Len(t, started.Attempt.Flashcards, 2)
	examID := started.Attempt.ID

	decode(t, app.do(http.MethodGet, "/v1/srs/review-cards?topic_id="+tp.ID, studentToken, nil), &review)
	assert.True(t, review.NoAssessments)

	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/answers", otherToken, exam.Answer{FlashcardID: cards[0].ID, UserAnswer: "2x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/answers", studentToken, exam.Answer{FlashcardID: cards[0].ID, UserAnswer: "2x"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ans exam.AnswerResult
	decode(t, rec, &ans)
	assert.Equal(t, "The power rule", ans.WhatWasCorrect)

	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/answers", studentToken, exam.Answer{FlashcardID: cards[1].ID, IsSkipped: true})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &ans)
	assert.True(t, ans.IsSkipped)
	assert.Empty(t, ans.WhatWasCorrect)

	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/complete", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/complete", studentToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already completed")

	// self-assessment is still allowed once completed
	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/self-assessments", studentToken,
		exam.SelfAssessment{FlashcardID: cards[0].ID, Value: "Chưa hiểu"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assessed exam.SelfAssessmentResult
	decode(t, rec, &assessed)
	assert.Equal(t, exam.NotUnderstood, assessed.SelfAssessment)
	assert.Equal(t, srs.StatusLearning, assessed.SRSProgress.Status)

	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/self-assessments", studentToken,
		exam.SelfAssessment{FlashcardID: cards[1].ID, Value: exam.VeryClear})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &assessed)
	assert.Equal(t, 7.0, assessed.SRSProgress.IntervalDays)

	rec = app.do(http.MethodPost, "/v1/exams/"+examID+"/self-assessments", studentToken,
		exam.SelfAssessment{FlashcardID: cards[1].ID, Value: "meh"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var view exam.AttemptView
	decode(t, app.do(http.MethodGet, "/v1/exams/"+examID, studentToken, nil), &view)
	assert.Equal(t, "Calculus", view.TopicName)
	assert.Len(t, view.Details, 2)

	var hist exam.History
	decode(t, app.do(http.MethodGet, "/v1/exams/history?topic_id="+tp.ID, studentToken, nil), &hist)
	assert.Equal(t, 1, hist.TotalCount)
	decode(t, app.do(http.MethodGet, "/v1/exams/history", otherToken, nil), &hist)
	assert.Zero(t, hist.TotalCount)
	assert.NotNil(t, hist.Attempts)

	// only the card not understood is due now
	decode(t, app.do(http.MethodGet, "/v1/srs/review-cards?topic_id="+tp.ID, studentToken, nil), &review)
	require.Len(t, review.Cards, 1)
	assert.Equal(t, cards[0].ID, review.Cards[0].ID)
	assert.Equal(t, srs.StatusLearning, review.Cards[0].Status)

	rec = app.do(http.MethodPost, "/v1/srs/progress", studentToken,
		map[string]interface{}{"flashcard_id": cards[0].ID, "user_rating": "easy", "time_spent_seconds": 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rated srs.RateResult
	decode(t, rec, &rated)
	assert.Equal(t, srs.StatusReview, rated.Status)
	assert.Equal(t, 3.0, rated.IntervalDays)

	var sum srs.DueSummary
	decode(t, app.do(http.MethodGet, "/v1/srs/summary", studentToken, nil), &sum)
	assert.Equal(t, 2, sum.TotalCount)
	assert.Zero(t, sum.DueCount)
	require.Len(t, sum.Topics, 1)
	assert.Equal(t, "Calculus", sum.Topics[0].TopicName)

	var months []core.MonthlyTime
	rec = app.do(http.MethodGet, "/v1/srs/time-by-month", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &months)
	require.Len(t, months, 12)
	assert.Equal(t, 30, months[time.Now().UTC().Month()-1].TimeSpent)

	rec = app.do(http.MethodGet, "/v1/exams/time-by-month?year=abc", studentToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var reset CountResponse
	decode(t, app.do(http.MethodDelete, "/v1/srs/topics/"+tp.ID, studentToken, nil), &reset)
	assert.Equal(t, 2, reset.DeletedCount)
}

func Test_sessionApi(t *testing.T) {
	app := newTestApp(t)
	studentToken := app.token(t, app.createUser(t, "student@test.cd"))
	otherToken := app.token(t, app.createUser(t, "other@test.cd"))
	tp, _ := seedDeck(t, app)

	rec := app.do(http.MethodPost, "/v1/sessions", studentToken, session.NewSession{TopicID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(http.MethodPost, "/v1/sessions", studentToken, session.NewSession{TopicID: tp.ID, Mode: "Cram"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(http.MethodPost, "/v1/sessions", studentToken, session.NewSession{TopicID: tp.ID, Mode: session.ModeSRS})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started StartSessionResponse
	decode(t, rec, &started)
	require.NotEmpty(t, started.SessionID)

	tests := []httpTest{
		{name: "negative time", method: http.MethodPatch, path: "/v1/sessions/" + started.SessionID + "/time", token: studentToken, body: session.AddTime{TimeSpentSeconds: -1}, wantCode: http.StatusBadRequest},
		{name: "not owner", method: http.MethodPatch, path: "/v1/sessions/" + started.SessionID + "/time", token: otherToken, body: session.AddTime{TimeSpentSeconds: 10}, wantCode: http.StatusForbidden},
		{name: "add time", method: http.MethodPatch, path: "/v1/sessions/" + started.SessionID + "/time", token: studentToken, body: session.AddTime{TimeSpentSeconds: 90}, wantCode: http.StatusOK},
		{name: "end", method: http.MethodPost, path: "/v1/sessions/" + started.SessionID + "/end", token: studentToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	var report []session.MonthlyStudy
	decode(t, app.do(http.MethodGet, "/v1/sessions/time-by-month", studentToken, nil), &report)
	require.Len(t, report, 12)
	month := report[time.Now().UTC().Month()-1]
	assert.Equal(t, 90, month.SRSTime)
	assert.Equal(t, 90, month.StudyTime)
	assert.Zero(t, month.TestTime)
}

func Test_fileApi(t *testing.T) {
	app := newTestApp(t)
	owner := app.createUser(t, "owner@test.cd")
	ownerToken := app.token(t, owner)
	otherToken := app.token(t, app.createUser(t, "other@test.cd"))
	teacherToken := app.token(t, app.createUser(t, "teacher@test.cd", user.RoleTeacher))

	upload := func(token, field, filename string, content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/files/answer-images", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		app.srv.ServeHTTP(rec, req)
		return rec
	}

	png := []byte("\x89PNG\r\n\x1a\n fake image")
	assert.Equal(t, http.StatusBadRequest, upload(ownerToken, "image", "proof.png", png).Code, "wrong field")
	assert.Equal(t, http.StatusBadRequest, upload(ownerToken, "file", "proof.png", nil).Code, "empty file")
	html := []byte("<html><script>alert(document.cookie)</script></html>")
	assert.Equal(t, http.StatusBadRequest, upload(ownerToken, "file", "proof.html", html).Code, "html page")
	assert.Equal(t, http.StatusBadRequest, upload(ownerToken, "file", "proof.png", html).Code, "html named as an image")
	heic := append([]byte("\x00\x00\x00\x18ftypheic"), make([]byte, 16)...)
	assert.Equal(t, http.StatusCreated, upload(ownerToken, "file", "photo.heic", heic).Code, "heic photo")

	rec := upload(ownerToken, "file", "proof.png", png)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var up UploadResponse
	decode(t, rec, &up)
	assert.Equal(t, "proof.png", up.OriginalFilename)
	assert.Equal(t, app.conf.BackendBaseURL+"/v1/files/"+up.Name, up.FileURL)

	tests := []httpTest{
		{name: "owner", token: ownerToken, wantCode: http.StatusOK},
		{name: "teacher", token: teacherToken, wantCode: http.StatusOK},
		{name: "other student", token: otherToken, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, "/v1/files/"+up.Name, tt.token, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, png, rec.Body.Bytes())
				assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
				assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
				assert.Empty(t, rec.Header().Get("Content-Disposition"))
			}
		})
	}
}
