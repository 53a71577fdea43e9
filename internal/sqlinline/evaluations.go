package sqlinline

const QReleaseStaleEvaluations = `--sql 56f8acbd-188f-40e4-8bba-24c196b1d07e
delete from evaluations
where started_at < now() - ($1::int * interval '1 second')
returning project_id, pillar, started_at;
`

const QCountPendingEvaluations = `--sql 267f6adb-be19-4b94-925f-b4b106220490
select count(*) from evaluations;
`
