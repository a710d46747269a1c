package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

func TestGetJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, SubmitRequest{Payload: []byte("x")})
	require.NoError(t, err)

	job, err := f.svc.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)

	_, err = f.svc.GetJob(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = f.svc.GetJob(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = f.svc.GetJob(ctx, "")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestListQueuedAndByStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	queued, err := f.svc.ListQueued(ctx)
	require.NoError(t, err)
	assert.NotNil(t, queued)
	assert.Empty(t, queued)

	first, err := f.svc.Submit(ctx, SubmitRequest{Payload: []byte("a")})
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, SubmitRequest{Payload: []byte("b")})
	require.NoError(t, err)

	queued, err = f.svc.ListQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, queued)

	jobs, err := f.svc.ListByStatus(ctx, "queued")
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	jobs, err = f.svc.ListByStatus(ctx, "completed")
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)

	_, err = f.svc.ListByStatus(ctx, "done")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetAndDeleteArtifact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, f.blobs.Put(ctx, testOutputBucket, domain.ArtifactKey(id, "vocals.wav"), []byte("RIFF"), "audio/wav"))

	obj, err := f.svc.GetArtifact(ctx, id, "vocals.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), obj.Data)
	assert.Equal(t, "audio/wav", obj.ContentType)

	_, err = f.svc.GetArtifact(ctx, id, "drums.wav")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	require.NoError(t, f.svc.DeleteArtifact(ctx, id, "vocals.wav"))
	_, err = f.svc.GetArtifact(ctx, id, "vocals.wav")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)

	err = f.svc.DeleteArtifact(ctx, id, "vocals.wav")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func TestArtifactNameValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := uuid.NewString()

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := f.svc.GetArtifact(ctx, id, name)
		assert.ErrorIs(t, err, domain.ErrValidation, "name %q", name)

		err = f.svc.DeleteArtifact(ctx, id, name)
		assert.ErrorIs(t, err, domain.ErrValidation, "name %q", name)
	}

	loc, err := f.svc.ArtifactLocator(id, "out.txt")
	require.NoError(t, err)
	assert.Equal(t, testOutputBucket+"/"+id+"/out.txt", loc.String())

	_, err = f.svc.GetArtifact(ctx, "not-a-uuid", "out.txt")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
	err = f.svc.DeleteArtifact(ctx, "not-a-uuid", "out.txt")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}
