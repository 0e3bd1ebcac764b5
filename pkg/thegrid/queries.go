package thegrid

// GraphQL documents sent to the registry. The schema is Hasura-flavored:
// filters use _ilike / _eq operators and pagination uses limit/offset.

const profileFields = `
  id
  name
  slug
  descriptionShort
  root { id slug }
  urls { url urlType }
  socials { url socialType }
  products {
    id
    name
    urlMain
    supportedAssets { name ticker }
  }
`

const searchProfilesQuery = `
query SearchProfiles($pattern: String!, $limit: Int!) {
  profiles(where: {name: {_ilike: $pattern}}, limit: $limit) {` + profileFields + `}
}`

const searchByURLQuery = `
query SearchByURL($pattern: String!, $limit: Int!) {
  profiles(where: {urls: {url: {_ilike: $pattern}}}, limit: $limit) {` + profileFields + `}
  products(where: {urlMain: {_ilike: $pattern}}, limit: $limit) {
    id
    name
    urlMain
    root { id slug }
    supportedAssets { name ticker }
  }
}`

const rootBySlugQuery = `
query RootBySlug($slug: String!) {
  roots(where: {slug: {_eq: $slug}}, limit: 1) {
    id
    slug
  }
}`

const rootByIDQuery = `
query RootByID($id: String!) {
  roots(where: {id: {_eq: $id}}, limit: 1) {
    id
    slug
  }
}`

const listProfilesQuery = `
query ListProfiles($limit: Int!, $offset: Int!) {
  profiles(order_by: {id: asc}, limit: $limit, offset: $offset) {` + profileFields + `}
}`

const listProductsQuery = `
query ListProducts($limit: Int!, $offset: Int!) {
  products(order_by: {id: asc}, limit: $limit, offset: $offset) {
    id
    name
    urlMain
    root { id slug }
    supportedAssets { name ticker }
  }
}`
