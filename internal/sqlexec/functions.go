package sqlexec

// Definitions of the SQL-execution procedures the cascade relies on. They are
// installed on demand when a strategy finds its procedure missing.
var functionDefinitions = map[string]string{
	"pg_query": `CREATE OR REPLACE FUNCTION public.pg_query(query text)
RETURNS jsonb
LANGUAGE plpgsql
SECURITY DEFINER
SET search_path = public
AS $$
DECLARE
  result jsonb;
BEGIN
  IF lower(ltrim(query)) LIKE 'select%' OR lower(ltrim(query)) LIKE 'with%' THEN
    EXECUTE 'SELECT coalesce(jsonb_agg(t), ''[]''::jsonb) FROM (' || rtrim(query, '; ') || ') t' INTO result;
  ELSE
    EXECUTE query;
    result := jsonb_build_object('success', true);
  END IF;
  RETURN result;
END;
$$;`,

	"exec_sql": `CREATE OR REPLACE FUNCTION public.exec_sql(sql_text text)
RETURNS jsonb
LANGUAGE plpgsql
SECURITY DEFINER
SET search_path = public
AS $$
BEGIN
  EXECUTE sql_text;
  RETURN jsonb_build_object('success', true);
END;
$$;`,
}

// FunctionDefinition returns the CREATE OR REPLACE FUNCTION statement for fn.
func FunctionDefinition(fn string) (string, bool) {
	def, ok := functionDefinitions[fn]
	return def, ok
}
